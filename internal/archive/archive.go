// Package archive reads, extracts and writes the gzip-compressed tar archives
// used both as restore sources and as safety snapshots.
//
// Entry names are absolute filesystem paths with the leading slash removed
// ("etc/nginx/nginx.conf"); directories carry a trailing slash.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Codec is the narrow contract the restore stages depend on.
type Codec interface {
	// List reads every entry (headers and bodies) without extracting, which
	// also verifies the compression checksum.
	List(ctx context.Context, archivePath string) (*Listing, error)
	// Extract writes every entry under destRoot, overwriting existing files,
	// and returns the entries it read in order.
	Extract(ctx context.Context, archivePath, destRoot string) (*Listing, error)
	// Create archives items (absolute paths resolved under root) into
	// archivePath. Entry names come from the item paths, not from root, so
	// the result extracts back with Extract(archivePath, root).
	Create(ctx context.Context, archivePath, root string, items []string) (*CreateResult, error)
}

// Entry is one archive member.
type Entry struct {
	Name     string
	Type     byte
	Size     int64
	Mode     fs.FileMode
	Linkname string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == tar.TypeDir }

// Listing is the ordered content of an archive.
type Listing struct {
	Archive   string
	Entries   []Entry
	TotalSize int64
}

// Names returns entry names in archive order.
func (l *Listing) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		names[i] = e.Name
	}
	return names
}

// Files counts non-directory entries.
func (l *Listing) Files() int {
	n := 0
	for _, e := range l.Entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

// Diff returns a description of the first difference between l and other,
// or "" when both list the same entries in the same order.
func (l *Listing) Diff(other *Listing) string {
	a, b := l.Names(), other.Names()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return fmt.Sprintf("entry %d: %q vs %q", i, a[i], b[i])
		}
	}
	if len(a) != len(b) {
		return fmt.Sprintf("entry count %d vs %d", len(a), len(b))
	}
	return ""
}

// CreateResult summarizes a Create call.
type CreateResult struct {
	Path     string
	Sources  []string
	Files    int
	Dirs     int
	Bytes    int64
	Warnings []string
}

// CorruptError reports an archive that failed the listing pass.
type CorruptError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *CorruptError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive %s is corrupt at entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("archive %s is corrupt: %v", e.Archive, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// EntryName converts an absolute path into its archive entry name.
func EntryName(absPath string, isDir bool) string {
	name := strings.TrimLeft(path.Clean("/"+strings.TrimLeft(absPath, "/")), "/")
	if isDir && name != "" {
		name += "/"
	}
	return name
}

// normalizeName maps "./etc/x", "/etc/x" and "etc/x" to "etc/x" and rejects
// names that would leave the extraction root.
func normalizeName(raw string, isDir bool) (string, error) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "./")
	if name == "" || name == "." || name == "./" {
		return "", fmt.Errorf("empty archive entry name")
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains("/"+cleaned+"/", "/../") {
		return "", fmt.Errorf("illegal path in archive: %s", raw)
	}
	cleaned = strings.TrimLeft(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid archive entry name: %q", raw)
	}
	if isDir {
		cleaned += "/"
	}
	return cleaned, nil
}

func entryFromHeader(h *tar.Header) (Entry, error) {
	name, err := normalizeName(h.Name, h.Typeflag == tar.TypeDir)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:     name,
		Type:     h.Typeflag,
		Size:     h.Size,
		Mode:     h.FileInfo().Mode(),
		Linkname: h.Linkname,
	}, nil
}
