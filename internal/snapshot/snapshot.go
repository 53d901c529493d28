// Package snapshot archives the current state of the restore items right
// before they are overwritten. Snapshots are retained; nothing here prunes
// them.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tis24dev/stackrestore/internal/archive"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/pkg/utils"
)

// PointerFile, inside the snapshot directory, holds the path of the most
// recent snapshot.
const PointerFile = "last-safety-snapshot.txt"

// Snapshot describes the outcome of Take.
type Snapshot struct {
	// Taken is false when none of the items existed.
	Taken     bool
	Path      string
	Timestamp time.Time
	// Sources are the archived item paths, relative to the engine root.
	Sources   []string
	Missing   []string
	Files     int
	Bytes     int64
	Warnings  []string
}

// Engine creates safety snapshots.
type Engine struct {
	codec  archive.Codec
	dir    string
	root   string
	clock  system.Clock
	logger *logging.Logger
}

// NewEngine stores snapshots in dir. Items are resolved under root ("/" in
// production).
func NewEngine(codec archive.Codec, dir, root string, clock system.Clock, logger *logging.Logger) *Engine {
	if clock == nil {
		clock = system.RealClock{}
	}
	if root == "" {
		root = "/"
	}
	return &Engine{codec: codec, dir: dir, root: root, clock: clock, logger: logger}
}

// Existing splits items into those that currently exist under the engine
// root and those that do not, preserving order. Both lists hold the item
// paths as configured.
func (e *Engine) Existing(items []string) (present, missing []string) {
	for _, item := range items {
		full := filepath.Join(e.root, item)
		ok, err := utils.PathExists(full)
		switch {
		case err != nil:
			e.logger.Warning("Cannot stat %s: %v (excluded from snapshot)", full, err)
			missing = append(missing, item)
		case ok:
			present = append(present, item)
		default:
			missing = append(missing, item)
		}
	}
	return present, missing
}

// Take archives the existing items into <dir>/pre-restore-<timestamp>.tar.gz.
// With no existing items it creates nothing and reports Taken=false.
func (e *Engine) Take(ctx context.Context, items []string) (*Snapshot, error) {
	now := e.clock.Now()
	present, missing := e.Existing(items)
	snap := &Snapshot{Timestamp: now, Sources: present, Missing: missing}
	for _, m := range missing {
		e.logger.Skip("%s does not exist (nothing to preserve)", m)
	}
	if len(present) == 0 {
		e.logger.Info("No restore item exists yet; safety snapshot not needed")
		return snap, nil
	}

	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", e.dir, err)
	}
	snap.Path = filepath.Join(e.dir, fmt.Sprintf("pre-restore-%s.tar.gz", now.Format("20060102_150405")))

	e.logger.Info("Creating safety snapshot of %d item(s)...", len(present))
	e.logger.Debug("Safety snapshot will be saved to: %s", snap.Path)
	result, err := e.codec.Create(ctx, snap.Path, e.root, present)
	if err != nil {
		return nil, fmt.Errorf("create safety snapshot: %w", err)
	}
	snap.Taken = true
	snap.Files = result.Files
	snap.Bytes = result.Bytes
	snap.Warnings = result.Warnings

	e.logger.Info("Safety snapshot created: %s (%d files, %s)", snap.Path, snap.Files, humanize.Bytes(uint64(snap.Bytes)))
	pointer := filepath.Join(e.dir, PointerFile)
	if err := os.WriteFile(pointer, []byte(snap.Path+"\n"), 0o600); err != nil {
		e.logger.Warning("Could not write snapshot pointer %s: %v", pointer, err)
	}
	return snap, nil
}

// RollbackHint is the manual command that restores a snapshot taken by an
// engine rooted at root. An empty root means "/".
func RollbackHint(snapshotPath, root string) string {
	if root == "" {
		root = "/"
	}
	return fmt.Sprintf("tar -xzpf %s -C %s", snapshotPath, root)
}
