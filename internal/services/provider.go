// Package services stops and starts the services that hold the restore items
// open, in a fixed order, through pluggable service-manager backends.
package services

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes plain service-manager units from container stacks.
type Kind string

const (
	KindUnit    Kind = "simple_unit"
	KindCompose Kind = "compose_stack"
)

// Role is the position a member takes in the stop/start sequence.
type Role string

const (
	RoleAux     Role = "aux"
	RoleCompose Role = "compose"
	RoleEdge    Role = "edge"
)

// ErrNotPresent is returned by providers asked to act on something they
// cannot find.
var ErrNotPresent = errors.New("service not present")

// Provider drives one kind of service. The name is a unit name for
// service-manager providers and a descriptor path for compose.
type Provider interface {
	Present(ctx context.Context, name string) (bool, error)
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	IsActive(ctx context.Context, name string) (bool, error)
}

// Timeouts bound the individual service-manager calls.
type Timeouts struct {
	Stop   time.Duration
	Start  time.Duration
	Verify time.Duration
	Status time.Duration
	Poll   time.Duration
	Retry  time.Duration
}

// DefaultTimeouts returns the production limits. A positive stop overrides
// the default stop limit.
func DefaultTimeouts(stop time.Duration) Timeouts {
	t := Timeouts{
		Stop:   45 * time.Second,
		Start:  30 * time.Second,
		Verify: 30 * time.Second,
		Status: 5 * time.Second,
		Poll:   500 * time.Millisecond,
		Retry:  500 * time.Millisecond,
	}
	if stop > 0 {
		t.Stop = stop
	}
	return t
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
