// Package credentials decrypts the embedded remote-storage credential blob
// onto disk on first use.
package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/pkg/utils"
)

var (
	// ErrDecrypt means the blob could not be decrypted with the passphrase.
	ErrDecrypt = errors.New("credential blob could not be decrypted")
	// ErrNoBlob means no encrypted payload was provided.
	ErrNoBlob = errors.New("no credential blob available")
)

// Blob is an age passphrase-encrypted payload and where it belongs.
type Blob struct {
	Payload    []byte
	TargetPath string
}

// Result describes what Bootstrap did.
type Result struct {
	Target string
	// Written is false when the target already existed.
	Written bool
	Bytes   int64
}

// Bootstrap decrypts blob to its target with mode 0600. An existing target
// is left untouched and src is not consulted.
func Bootstrap(ctx context.Context, blob Blob, src PassphraseSource, logger *logging.Logger) (*Result, error) {
	target := blob.TargetPath
	if target == "" {
		return nil, errors.New("credential target path is empty")
	}
	exists, err := utils.PathExists(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if exists {
		logger.Skip("Credential file %s already present", target)
		return &Result{Target: target}, nil
	}
	if len(blob.Payload) == 0 {
		return nil, ErrNoBlob
	}
	if src == nil {
		src = DefaultSource()
	}

	pass, err := src.Passphrase(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := age.NewScryptIdentity(pass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	n, err := decryptTo(ctx, blob.Payload, target, identity)
	if err != nil {
		return nil, err
	}
	logger.Info("Credential file written to %s", target)
	return &Result{Target: target, Written: true, Bytes: n}, nil
}

func decryptTo(ctx context.Context, payload []byte, target string, identity age.Identity) (int64, error) {
	reader, err := age.Decrypt(bytes.NewReader(payload), identity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temporary credential file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	n, err := io.Copy(tmp, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return 0, fmt.Errorf("install %s: %w", target, err)
	}
	committed = true
	return n, nil
}
