package system

import (
	"context"
	"sync"
)

// FakeRunner records every command and answers from canned outputs keyed by
// the full command line ("systemctl stop nginx").
type FakeRunner struct {
	mu      sync.Mutex
	Outputs map[string][]byte
	Errors  map[string]error
	// Hook, when set, runs before the canned answer is looked up.
	Hook  func(line string)
	calls []string
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Outputs: map[string][]byte{}, Errors: map[string]error{}}
}

// Run records the call and returns the configured answer (empty output, nil
// error by default).
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := CommandLine(name, args...)
	f.mu.Lock()
	f.calls = append(f.calls, line)
	hook := f.Hook
	out, err := f.Outputs[line], f.Errors[line]
	f.mu.Unlock()
	if hook != nil {
		hook(line)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, err
}

// Calls returns the recorded command lines in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
