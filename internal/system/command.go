// Package system wraps the host interactions (external commands, clock)
// that restore stages need, so each stage can be driven by fakes in tests.
package system

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes system commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to CommandRunner.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// OSRunner runs commands with os/exec and returns combined output.
type OSRunner struct{}

// Run executes name with args.
func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LookPath is swapped in tests to simulate missing binaries.
var LookPath = exec.LookPath

// HasBinary reports whether name resolves on PATH.
func HasBinary(name string) bool {
	_, err := LookPath(name)
	return err == nil
}

// RunWithTimeout bounds a single command with timeout. A zero timeout means
// no limit beyond ctx.
func RunWithTimeout(ctx context.Context, runner CommandRunner, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout <= 0 {
		return runner.Run(ctx, name, args...)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := runner.Run(tctx, name, args...)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, &TimeoutError{Command: CommandLine(name, args...), Timeout: timeout}
	}
	return out, err
}

// TimeoutError reports a command that exceeded its own time limit.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return e.Command + " timed out after " + e.Timeout.String()
}

// CommandLine renders name and args the way they were invoked.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Clock abstracts time acquisition for determinism in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns wall-clock time.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }
