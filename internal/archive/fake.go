package archive

import (
	"context"
	"os"
	"sync"
)

// Fake is an in-memory Codec. Archives are keyed by path; Create records the
// sources and writes a placeholder file so callers can stat the result.
type Fake struct {
	mu       sync.Mutex
	Archives map[string]*Listing

	ListErr    error
	ExtractErr error
	CreateErr  error

	Extracted []string
	Created   map[string][]string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{Archives: map[string]*Listing{}, Created: map[string][]string{}}
}

// List returns the registered listing for archivePath.
func (f *Fake) List(ctx context.Context, archivePath string) (*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	l, ok := f.Archives[archivePath]
	if !ok {
		return nil, &CorruptError{Archive: archivePath, Err: os.ErrNotExist}
	}
	return l, nil
}

// Extract records the call and returns the registered listing.
func (f *Fake) Extract(ctx context.Context, archivePath, destRoot string) (*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Extracted = append(f.Extracted, archivePath+" -> "+destRoot)
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}
	return f.Archives[archivePath], nil
}

// Create records the items and writes an empty file at archivePath.
func (f *Fake) Create(ctx context.Context, archivePath, root string, items []string) (*CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Created[archivePath] = append([]string(nil), items...)
	if err := os.WriteFile(archivePath, nil, 0o600); err != nil {
		return nil, err
	}
	return &CreateResult{Path: archivePath, Sources: append([]string(nil), items...), Files: len(items)}, nil
}
