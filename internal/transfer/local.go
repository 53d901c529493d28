package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/safefs"
)

// localListTimeout bounds the directory listing; a stale NFS or CIFS mount
// otherwise blocks selection forever.
const localListTimeout = 30 * time.Second

// Local treats a directory (a mounted share, a removable disk) as the remote.
type Local struct {
	dir         string
	listTimeout time.Duration
	logger      *logging.Logger
}

// NewLocal accepts "/path" or "file:///path".
func NewLocal(location string, logger *logging.Logger) *Local {
	dir := strings.TrimPrefix(strings.TrimSpace(location), "file://")
	return &Local{dir: filepath.Clean(dir), listTimeout: localListTimeout, logger: logger}
}

// Name returns "local".
func (l *Local) Name() string { return "local" }

// RemotePath returns the absolute file path of name inside the directory.
func (l *Local) RemotePath(name string) string {
	return filepath.Join(l.dir, filepath.Base(filepath.Clean("/"+name)))
}

func (l *Local) fail(op, target string, err error) error {
	kind := KindOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindAuth
	case errors.Is(err, safefs.ErrTimeout):
		kind = KindTimeout
	}
	return &Error{Backend: l.Name(), Op: op, Target: target, Kind: kind, Err: err}
}

// List returns the regular files in the directory.
func (l *Local) List(ctx context.Context) ([]Object, error) {
	entries, err := safefs.ReadDir(ctx, l.dir, l.listTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, l.fail("list", l.dir, err)
	}
	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return objects, nil
}

// Download copies remotePath to localPath.
func (l *Local) Download(ctx context.Context, remotePath, localPath string) error {
	src, err := os.Open(remotePath)
	if err != nil {
		return l.fail("download", remotePath, err)
	}
	defer src.Close()

	if err := ensureParent(localPath); err != nil {
		return err
	}
	staged := partialPath(localPath)
	dst, err := os.OpenFile(staged, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", staged, err)
	}
	_, copyErr := io.Copy(dst, &contextReader{ctx: ctx, r: src})
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		copyErr = l.fail("download", remotePath, copyErr)
	}
	return commitDownload(staged, localPath, copyErr)
}

// contextReader stops a long copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
