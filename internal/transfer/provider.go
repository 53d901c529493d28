// Package transfer fetches backup archives from remote storage into the
// local work directory.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/system"
)

// Object is one entry of a remote listing.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Provider is the narrow contract every remote backend implements.
type Provider interface {
	// Name identifies the backend in logs ("rclone", "s3", "local").
	Name() string
	// List returns the objects directly under the configured remote location.
	List(ctx context.Context) ([]Object, error)
	// RemotePath renders the backend-specific reference to name.
	RemotePath(name string) string
	// Download copies remotePath into localPath. On failure no file is left
	// at localPath.
	Download(ctx context.Context, remotePath, localPath string) error
}

// ErrorKind classifies remote failures for diagnostics.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindAuth     ErrorKind = "auth"
	KindNotFound ErrorKind = "not-found"
	KindNetwork  ErrorKind = "network"
	KindOther    ErrorKind = "other"
)

// Error describes a failed remote operation.
type Error struct {
	Backend string
	Op      string
	Target  string
	Kind    ErrorKind
	Output  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s %s failed (%s)", e.Backend, e.Op, e.Target, e.Kind)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a transfer error for a missing object.
func IsNotFound(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindNotFound
}

// classifyOutput maps common rclone/network messages to an ErrorKind.
// Auth markers are checked first: several of them contain "not found".
func classifyOutput(text string) ErrorKind {
	text = strings.ToLower(text)
	switch {
	case containsAny(text, "couldn't find configuration section", "not found in config file",
		"error reading section", "didn't find section in config file", "401 unauthorized",
		"403 forbidden", "access denied", "permission denied", "accessdenied", "invalidaccesskeyid"):
		return KindAuth
	case containsAny(text, "directory not found", "object not found", "file not found",
		"couldn't find root", "path not found", "no such file", "nosuchkey", "not found"):
		return KindNotFound
	case containsAny(text, "dial tcp", "connection refused", "network is unreachable",
		"host is down", "no such host", "connection reset"):
		return KindNetwork
	case containsAny(text, "timeout", "deadline exceeded"):
		return KindTimeout
	}
	return KindOther
}

func containsAny(text string, substrings ...string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// partialPath is where a download is staged before the final rename.
func partialPath(localPath string) string {
	return localPath + ".part"
}

// commitDownload renames the staged file into place, or removes it when the
// download failed.
func commitDownload(staged, localPath string, downloadErr error) error {
	if downloadErr != nil {
		_ = os.Remove(staged)
		return downloadErr
	}
	if err := os.Rename(staged, localPath); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("finalize download %s: %w", localPath, err)
	}
	return nil
}

func ensureParent(localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	return nil
}

// New builds the provider selected by TRANSFER_BACKEND.
func New(ctx context.Context, cfg *config.Config, runner system.CommandRunner, logger *logging.Logger) (Provider, error) {
	switch cfg.TransferBackend {
	case config.BackendRclone:
		return NewRclone(cfg.RemoteLocation, cfg.CredentialTarget, cfg.RcloneFlags, runner, logger), nil
	case config.BackendS3:
		p, err := NewS3(ctx, S3Options{
			Location:        cfg.RemoteLocation,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BackendLocal:
		return NewLocal(cfg.RemoteLocation, logger), nil
	}
	return nil, fmt.Errorf("unsupported transfer backend %q", cfg.TransferBackend)
}
