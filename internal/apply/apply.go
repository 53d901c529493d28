// Package apply writes a validated archive over the live filesystem.
//
// Apply never rolls back. A failure leaves the filesystem partially
// restored and the services stopped; the caller reports the safety
// snapshot for manual recovery.
package apply

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tis24dev/stackrestore/internal/archive"
	"github.com/tis24dev/stackrestore/internal/logging"
)

// ErrNotReady is returned when Apply is asked to run before its
// preconditions hold.
var ErrNotReady = errors.New("apply preconditions not met")

// Request describes one application of an archive.
type Request struct {
	Archive string
	// Expected is the listing produced by validation.
	Expected *archive.Listing
	// SnapshotSettled is true once the snapshot stage completed or was
	// skipped because nothing existed.
	SnapshotSettled bool
	// ServicesStopped is true once the stop stage has run.
	ServicesStopped bool
}

// Result summarizes a successful application.
type Result struct {
	Entries int
	Files   int
	Bytes   int64
}

// Error reports a failed application. Entry is the archive entry being
// written when the failure happened, if known.
type Error struct {
	Archive string
	Entry   string
	Written int
	Err     error
}

func (e *Error) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("apply %s failed at %q after %d entries: %v", e.Archive, e.Entry, e.Written, e.Err)
	}
	return fmt.Sprintf("apply %s failed after %d entries: %v", e.Archive, e.Written, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Engine extracts archives under a destination root.
type Engine struct {
	codec  archive.Codec
	root   string
	logger *logging.Logger
}

// NewEngine extracts into root ("/" in production).
func NewEngine(codec archive.Codec, root string, logger *logging.Logger) *Engine {
	if root == "" {
		root = "/"
	}
	return &Engine{codec: codec, root: root, logger: logger}
}

// Root returns the destination root.
func (e *Engine) Root() string { return e.root }

// Apply extracts req.Archive with overwrite and checks that the entries
// written are exactly the validated ones.
func (e *Engine) Apply(ctx context.Context, req Request) (*Result, error) {
	switch {
	case !req.SnapshotSettled:
		return nil, fmt.Errorf("%w: safety snapshot stage has not completed", ErrNotReady)
	case !req.ServicesStopped:
		return nil, fmt.Errorf("%w: services have not been stopped", ErrNotReady)
	case req.Expected == nil:
		return nil, fmt.Errorf("%w: archive %s was not validated", ErrNotReady, req.Archive)
	}

	e.logger.Info("Extracting %s into %s (%d entries)", req.Archive, e.root, len(req.Expected.Entries))
	written, err := e.codec.Extract(ctx, req.Archive, e.root)
	if err != nil {
		aerr := &Error{Archive: req.Archive, Err: err}
		if written != nil {
			aerr.Written = len(written.Entries)
		}
		var xerr *archive.ExtractError
		if errors.As(err, &xerr) {
			aerr.Entry = xerr.Entry
		}
		return nil, aerr
	}
	if written == nil {
		return nil, &Error{Archive: req.Archive, Err: errors.New("extraction returned no listing")}
	}
	if diff := req.Expected.Diff(written); diff != "" {
		return nil, &Error{
			Archive: req.Archive,
			Written: len(written.Entries),
			Err:     fmt.Errorf("extracted entries differ from validated listing: %s", diff),
		}
	}

	res := &Result{Entries: len(written.Entries), Files: written.Files(), Bytes: written.TotalSize}
	e.logger.Info("Restored %d entries (%d files, %s)", res.Entries, res.Files, humanize.Bytes(uint64(res.Bytes)))
	return res, nil
}
