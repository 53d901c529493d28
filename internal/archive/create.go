package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Create implements Codec. Sources that vanish or change while being read
// produce warnings rather than errors; only failures writing the archive
// itself are returned.
func (c *TarGz) Create(ctx context.Context, archivePath, root string, items []string) (*CreateResult, error) {
	if root == "" {
		root = "/"
	}
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("archive root must be absolute: %q", root)
	}
	root = filepath.Clean(root)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	file, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)
	w := &archiveWriter{tw: tw, codec: c, root: root, result: &CreateResult{Path: archivePath}}

	var walkErr error
	for _, item := range items {
		if walkErr = ctx.Err(); walkErr != nil {
			break
		}
		w.result.Sources = append(w.result.Sources, item)
		if walkErr = w.addTree(ctx, filepath.Join(root, item)); walkErr != nil {
			break
		}
	}

	closeErr := errors.Join(tw.Close(), gz.Close(), file.Close())
	if walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		_ = os.Remove(archivePath)
		return nil, walkErr
	}
	return w.result, nil
}

// openSource is swapped in tests to simulate files changing mid-read.
var openSource = func(p string) (io.ReadCloser, error) { return os.Open(p) }

type archiveWriter struct {
	tw     *tar.Writer
	codec  *TarGz
	root   string
	result *CreateResult
}

// entryName maps a path under the writer root to its entry name.
func (w *archiveWriter) entryName(p string, isDir bool) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return EntryName(p, isDir)
	}
	return EntryName(filepath.ToSlash(rel), isDir)
}

func (w *archiveWriter) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	w.result.Warnings = append(w.result.Warnings, msg)
	w.codec.logger.Warning("%s", msg)
}

func (w *archiveWriter) addTree(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.warn("%s disappeared while archiving", p)
				return nil
			}
			w.warn("cannot read %s: %v", p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			w.warn("%s disappeared while archiving", p)
			return nil
		}
		return w.addEntry(p, info)
	})
}

func (w *archiveWriter) addEntry(p string, info fs.FileInfo) error {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = w.entryName(p, true)
		if err := w.tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", p, err)
		}
		w.result.Dirs++
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			w.warn("cannot read symlink %s: %v", p, err)
			return nil
		}
		header, err := tar.FileInfoHeader(info, target)
		if err != nil {
			return err
		}
		header.Name = w.entryName(p, false)
		if err := w.tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", p, err)
		}
		w.result.Files++
	case mode.IsRegular():
		return w.addFile(p, info)
	default:
		w.codec.logger.Debug("Skipping special file %s (%s)", p, mode.Type())
	}
	return nil
}

// addFile stores a regular file using the size seen at stat time. A file
// that shrinks is zero-padded and one that grows is truncated, both with a
// warning, so the tar stream stays well formed.
func (w *archiveWriter) addFile(p string, info fs.FileInfo) error {
	f, err := openSource(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.warn("%s disappeared while archiving", p)
		} else {
			w.warn("cannot open %s: %v", p, err)
		}
		return nil
	}
	defer f.Close()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = w.entryName(p, false)
	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", p, err)
	}

	written, copyErr := io.CopyN(w.tw, f, header.Size)
	if copyErr != nil && !errors.Is(copyErr, io.EOF) {
		w.warn("read error on %s after %d bytes: %v", p, written, copyErr)
	}
	if written < header.Size {
		if copyErr == nil || errors.Is(copyErr, io.EOF) {
			w.warn("%s shrank while archiving (%d of %d bytes)", p, written, header.Size)
		}
		if _, err := io.CopyN(w.tw, zeroReader{}, header.Size-written); err != nil {
			return fmt.Errorf("pad %s: %w", p, err)
		}
	} else if n, _ := f.Read(make([]byte, 1)); n > 0 {
		w.warn("%s grew while archiving; stored the first %d bytes", p, header.Size)
	}

	w.result.Files++
	w.result.Bytes += header.Size
	return nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
