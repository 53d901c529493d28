// Package selector resolves which remote archive a restore run uses.
package selector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/transfer"
)

const dateLayout = "2006-01-02"

var (
	// ErrNotFound means no remote object matched the naming pattern.
	ErrNotFound = errors.New("no matching backup found")
	// ErrConflictingRequest means both a name and a date were requested.
	ErrConflictingRequest = errors.New("backup name and date are mutually exclusive")
	// ErrInvalidRequest means the requested name or date is malformed.
	ErrInvalidRequest = errors.New("invalid backup request")
)

// Source records how a descriptor was chosen.
type Source string

const (
	SourceExplicitName Source = "explicit-name"
	SourceExplicitDate Source = "explicit-date"
	SourceLatest       Source = "latest"
)

// Descriptor identifies the single archive chosen for a run.
type Descriptor struct {
	Name       string
	Date       time.Time // zero when Name does not follow the dated pattern
	RemotePath string
	LocalPath  string
	Source     Source
	// Size comes from the remote listing; zero when the name was given
	// explicitly and never listed.
	Size int64
}

// Request carries the user's selection. At most one field may be set.
type Request struct {
	Name string
	Date string
}

// Lister is the part of a transfer provider the selector needs.
type Lister interface {
	List(ctx context.Context) ([]transfer.Object, error)
	RemotePath(name string) string
}

// Naming describes archive names of the form <Prefix>-YYYY-MM-DD<Extension>.
type Naming struct {
	Prefix    string
	Extension string
}

// Name renders the archive name for date.
func (n Naming) Name(date string) string {
	return n.Prefix + "-" + date + n.Extension
}

func (n Naming) pattern() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(n.Prefix) + `-(\d{4}-\d{2}-\d{2})` + regexp.QuoteMeta(n.Extension) + `$`)
}

// DateOf extracts the date from a dated archive name.
func (n Naming) DateOf(name string) (time.Time, bool) {
	m := n.pattern().FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Selector turns a Request into a Descriptor.
type Selector struct {
	naming  Naming
	lister  Lister
	workDir string
}

// New creates a selector that downloads into workDir.
func New(naming Naming, lister Lister, workDir string) *Selector {
	return &Selector{naming: naming, lister: lister, workDir: workDir}
}

// Select resolves req. An explicit name or date never touches the remote
// listing; only the "latest" path lists objects.
func (s *Selector) Select(ctx context.Context, req Request) (Descriptor, error) {
	name := strings.TrimSpace(req.Name)
	date := strings.TrimSpace(req.Date)

	switch {
	case name != "" && date != "":
		return Descriptor{}, ErrConflictingRequest
	case name != "":
		if err := validateName(name); err != nil {
			return Descriptor{}, err
		}
		return s.describe(name, SourceExplicitName), nil
	case date != "":
		if _, err := time.Parse(dateLayout, date); err != nil {
			return Descriptor{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRequest, date)
		}
		return s.describe(s.naming.Name(date), SourceExplicitDate), nil
	}

	objects, err := s.Objects(ctx)
	if err != nil {
		return Descriptor{}, err
	}
	if len(objects) == 0 {
		return Descriptor{}, fmt.Errorf("%w: pattern %s", ErrNotFound, s.naming.Name("YYYY-MM-DD"))
	}
	d := s.describe(objects[0].Name, SourceLatest)
	d.Size = objects[0].Size
	return d, nil
}

// Objects lists remote archives that match the dated pattern, newest
// (lexicographically greatest) first.
func (s *Selector) Objects(ctx context.Context) ([]transfer.Object, error) {
	objects, err := s.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote backups: %w", err)
	}
	re := s.naming.pattern()
	matched := make([]transfer.Object, 0, len(objects))
	for _, obj := range objects {
		if re.MatchString(obj.Name) {
			matched = append(matched, obj)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name > matched[j].Name })
	return matched, nil
}

func (s *Selector) describe(name string, source Source) Descriptor {
	d := Descriptor{
		Name:       name,
		RemotePath: s.lister.RemotePath(name),
		LocalPath:  filepath.Join(s.workDir, name),
		Source:     source,
	}
	if t, ok := s.naming.DateOf(name); ok {
		d.Date = t
	}
	return d
}

func validateName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: backup name %q must be a plain file name", ErrInvalidRequest, name)
	}
	return nil
}
