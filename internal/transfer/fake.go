package transfer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Provider for tests.
type Fake struct {
	mu      sync.Mutex
	base    string
	objects map[string][]byte

	ListErr     error
	DownloadErr error

	ListCalls     int
	DownloadCalls []string
}

// NewFake returns a provider whose RemotePath is "<base>/<name>".
func NewFake(base string) *Fake {
	return &Fake{base: strings.TrimSuffix(base, "/"), objects: map[string][]byte{}}
}

// Put stores an object.
func (f *Fake) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = data
}

// Name returns "fake".
func (f *Fake) Name() string { return "fake" }

// RemotePath returns "<base>/<name>".
func (f *Fake) RemotePath(name string) string { return f.base + "/" + name }

// List returns stored objects sorted by name.
func (f *Fake) List(ctx context.Context) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	objects := make([]Object, 0, len(f.objects))
	for name, data := range f.objects {
		objects = append(objects, Object{Name: name, Size: int64(len(data))})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Download writes the stored object to localPath.
func (f *Fake) Download(ctx context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	f.DownloadCalls = append(f.DownloadCalls, remotePath)
	dlErr := f.DownloadErr
	data, ok := f.objects[strings.TrimPrefix(remotePath, f.base+"/")]
	f.mu.Unlock()

	if dlErr != nil {
		return dlErr
	}
	if !ok {
		return &Error{Backend: f.Name(), Op: "download", Target: remotePath, Kind: KindNotFound, Err: fmt.Errorf("object not found")}
	}
	if err := ensureParent(localPath); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o600)
}
