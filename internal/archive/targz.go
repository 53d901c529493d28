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
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tis24dev/stackrestore/internal/logging"
)

// TarGz is the native tar+gzip Codec.
type TarGz struct {
	logger *logging.Logger
}

// NewTarGz returns a codec that logs through logger.
func NewTarGz(logger *logging.Logger) *TarGz {
	return &TarGz{logger: logger}
}

func openTarGz(archivePath string) (*os.File, *gzip.Reader, *tar.Reader, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open archive: %w", err)
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, nil, &CorruptError{Archive: archivePath, Err: fmt.Errorf("gzip header: %w", err)}
	}
	return file, gz, tar.NewReader(gz), nil
}

// walkArchive calls fn for every entry, then drains the gzip stream so its
// trailer checksum is verified.
func walkArchive(ctx context.Context, archivePath string, fn func(*tar.Header, *tar.Reader, Entry) error) (*Listing, error) {
	file, gz, tr, err := openTarGz(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	defer gz.Close()

	listing := &Listing{Archive: archivePath}
	for {
		if err := ctx.Err(); err != nil {
			return listing, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return listing, &CorruptError{Archive: archivePath, Entry: lastName(listing), Err: err}
		}
		entry, err := entryFromHeader(header)
		if err != nil {
			return listing, &CorruptError{Archive: archivePath, Entry: header.Name, Err: err}
		}
		if err := fn(header, tr, entry); err != nil {
			return listing, err
		}
		listing.Entries = append(listing.Entries, entry)
		if header.Typeflag == tar.TypeReg {
			listing.TotalSize += header.Size
		}
	}
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return listing, &CorruptError{Archive: archivePath, Err: fmt.Errorf("gzip trailer: %w", err)}
	}
	return listing, nil
}

func lastName(l *Listing) string {
	if len(l.Entries) == 0 {
		return ""
	}
	return l.Entries[len(l.Entries)-1].Name
}

// List implements Codec.
func (c *TarGz) List(ctx context.Context, archivePath string) (*Listing, error) {
	listing, err := walkArchive(ctx, archivePath, func(h *tar.Header, tr *tar.Reader, e Entry) error {
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return &CorruptError{Archive: archivePath, Entry: e.Name, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(listing.Entries) == 0 {
		return nil, &CorruptError{Archive: archivePath, Err: errors.New("archive contains no entries")}
	}
	c.logger.Debug("Archive %s: %d entries, %s uncompressed", archivePath, len(listing.Entries), humanize.Bytes(uint64(listing.TotalSize)))
	return listing, nil
}

// Extract implements Codec.
func (c *TarGz) Extract(ctx context.Context, archivePath, destRoot string) (*Listing, error) {
	root := filepath.Clean(destRoot)
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("extraction root must be absolute: %s", destRoot)
	}
	return walkArchive(ctx, archivePath, func(h *tar.Header, tr *tar.Reader, e Entry) error {
		if err := c.extractEntry(tr, h, e, root); err != nil {
			return &ExtractError{Entry: e.Name, Err: err}
		}
		return nil
	})
}

// ExtractError reports the entry that could not be written.
type ExtractError struct {
	Entry string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Entry, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

func (c *TarGz) extractEntry(tr *tar.Reader, h *tar.Header, e Entry, root string) error {
	target, err := resolveWithinRoot(root, strings.TrimSuffix(e.Name, "/"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	switch h.Typeflag {
	case tar.TypeDir:
		return c.extractDirectory(target, h)
	case tar.TypeReg:
		return c.extractRegularFile(tr, target, h)
	case tar.TypeSymlink:
		return c.extractSymlink(target, h)
	case tar.TypeLink:
		return c.extractHardlink(target, h, root)
	default:
		c.logger.Debug("Skipping unsupported entry type %d: %s", h.Typeflag, e.Name)
		return nil
	}
}

func (c *TarGz) extractDirectory(target string, h *tar.Header) error {
	mode := h.FileInfo().Mode().Perm()
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s with directory: %w", target, err)
		}
	}
	if err := os.MkdirAll(target, mode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	c.applyOwnership(target, h, false)
	if err := os.Chmod(target, mode); err != nil {
		return fmt.Errorf("chmod directory: %w", err)
	}
	c.applyTimes(target, h)
	return nil
}

func (c *TarGz) extractRegularFile(tr *tar.Reader, target string, h *tar.Header) error {
	mode := h.FileInfo().Mode().Perm()
	if info, err := os.Lstat(target); err == nil && (info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular()) {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return fmt.Errorf("write file content: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	c.applyOwnership(target, h, false)
	if err := os.Chmod(target, mode); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}
	c.applyTimes(target, h)
	return nil
}

// extractSymlink recreates the link verbatim. Later entries are written
// through resolveWithinRoot, so a link cannot redirect writes outside root.
func (c *TarGz) extractSymlink(target string, h *tar.Header) error {
	if h.Linkname == "" {
		return errors.New("symlink without target")
	}
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("replace directory with symlink: %w", err)
			}
		} else if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}
	if err := os.Symlink(h.Linkname, target); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	c.applyOwnership(target, h, true)
	return nil
}

func (c *TarGz) extractHardlink(target string, h *tar.Header, root string) error {
	linkName, err := normalizeName(h.Linkname, false)
	if err != nil {
		return fmt.Errorf("hardlink target: %w", err)
	}
	source, err := resolveWithinRoot(root, linkName)
	if err != nil {
		return fmt.Errorf("hardlink target escapes root: %s -> %s: %w", h.Name, h.Linkname, err)
	}
	_ = os.Remove(target)
	if err := os.Link(source, target); err != nil {
		return fmt.Errorf("create hardlink: %w", err)
	}
	return nil
}

func (c *TarGz) applyOwnership(target string, h *tar.Header, link bool) {
	if os.Geteuid() != 0 {
		return
	}
	chown := os.Chown
	if link {
		chown = os.Lchown
	}
	if err := chown(target, h.Uid, h.Gid); err != nil {
		c.logger.Debug("Failed to chown %s: %v", target, err)
	}
}

func (c *TarGz) applyTimes(target string, h *tar.Header) {
	atime := h.AccessTime
	if atime.IsZero() {
		atime = h.ModTime
	}
	if err := os.Chtimes(target, atime, h.ModTime); err != nil {
		c.logger.Debug("Failed to set timestamps on %s: %v", target, err)
	}
}

const maxLinkHops = 40

// resolveWithinRoot maps the entry path rel onto root, following symlinks in
// the parent components and refusing any that lead outside root. The final
// component is not followed because it is about to be replaced.
func resolveWithinRoot(root, rel string) (string, error) {
	parts := strings.Split(rel, "/")
	current := root
	hops := 0
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if part == "" || part == "." {
			continue
		}
		next := filepath.Join(current, part)
		if i == len(parts)-1 {
			current = next
			break
		}
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				current = filepath.Join(append([]string{next}, parts[i+1:]...)...)
				break
			}
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			current = next
			continue
		}
		hops++
		if hops > maxLinkHops {
			return "", fmt.Errorf("too many symlinks resolving %s", rel)
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		var resolved string
		if filepath.IsAbs(link) {
			resolved = filepath.Join(root, link)
		} else {
			resolved = filepath.Join(current, link)
		}
		if !within(root, resolved) {
			return "", fmt.Errorf("path %s escapes %s through symlink %s -> %s", rel, root, next, link)
		}
		// Re-walk the remaining components from the link target.
		relResolved, _ := filepath.Rel(root, resolved)
		remaining := append(strings.Split(filepath.ToSlash(relResolved), "/"), parts[i+1:]...)
		parts = remaining
		current = root
		i = -1
	}
	if !within(root, current) {
		return "", fmt.Errorf("path %s escapes %s", rel, root)
	}
	return current, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
