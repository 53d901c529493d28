package services

import (
	"context"
	"sync"
)

// Fake is an in-memory Provider that records calls as "op name".
type Fake struct {
	mu       sync.Mutex
	Missing  map[string]bool
	Inactive map[string]bool
	StopErr  map[string]error
	StartErr map[string]error
	calls    []string
}

// NewFake returns a Fake where every name is present and active.
func NewFake() *Fake {
	return &Fake{
		Missing:  map[string]bool{},
		Inactive: map[string]bool{},
		StopErr:  map[string]error{},
		StartErr: map[string]error{},
	}
}

func (f *Fake) record(op, name string) {
	f.mu.Lock()
	f.calls = append(f.calls, op+" "+name)
	f.mu.Unlock()
}

func (f *Fake) Present(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Missing[name], nil
}

func (f *Fake) Stop(ctx context.Context, name string) error {
	f.record("stop", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.StopErr[name]; err != nil {
		return err
	}
	f.Inactive[name] = true
	return nil
}

func (f *Fake) Start(ctx context.Context, name string) error {
	f.record("start", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.StartErr[name]; err != nil {
		return err
	}
	delete(f.Inactive, name)
	return nil
}

func (f *Fake) IsActive(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Inactive[name], nil
}

// Calls returns the recorded actions in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
