package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/system"
)

// Systemctl manages units by shelling out to systemctl.
type Systemctl struct {
	runner   system.CommandRunner
	logger   *logging.Logger
	timeouts Timeouts
}

// NewSystemctl returns a systemctl-backed provider.
func NewSystemctl(runner system.CommandRunner, timeouts Timeouts, logger *logging.Logger) *Systemctl {
	if runner == nil {
		runner = system.OSRunner{}
	}
	return &Systemctl{runner: runner, logger: logger, timeouts: timeouts}
}

// Present reports whether systemd knows the unit.
func (s *Systemctl) Present(ctx context.Context, unit string) (bool, error) {
	if unit == "" {
		return false, nil
	}
	_, err := system.RunWithTimeout(ctx, s.runner, s.timeouts.Status, "systemctl", "cat", unit)
	if err != nil {
		var te *system.TimeoutError
		if errors.As(err, &te) || ctx.Err() != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Systemctl) exec(ctx context.Context, timeout time.Duration, args ...string) error {
	output, err := system.RunWithTimeout(ctx, s.runner, timeout, "systemctl", args...)
	msg := strings.TrimSpace(string(output))
	line := system.CommandLine("systemctl", args...)
	if err != nil {
		var te *system.TimeoutError
		if errors.As(err, &te) {
			return err
		}
		if msg != "" {
			return fmt.Errorf("%s failed: %s", line, msg)
		}
		return fmt.Errorf("%s failed: %w", line, err)
	}
	if msg != "" {
		s.logger.Debug("%s: %s", line, msg)
	}
	return nil
}

// Stop escalates from a polite stop to SIGKILL until the unit reports
// inactive.
func (s *Systemctl) Stop(ctx context.Context, unit string) error {
	attempts := []struct {
		description string
		args        []string
	}{
		{"stop (no-block)", []string{"stop", "--no-block", unit}},
		{"stop (blocking)", []string{"stop", unit}},
		{"aggressive stop", []string{"kill", "--signal=SIGTERM", "--kill-who=all", unit}},
		{"force kill", []string{"kill", "--signal=SIGKILL", "--kill-who=all", unit}},
	}

	var lastErr error
	for i, attempt := range attempts {
		if i > 0 {
			if err := sleepWithContext(ctx, s.timeouts.Retry); err != nil {
				return err
			}
		}
		s.logger.Debug("Attempting %s for %s (%d/%d)", attempt.description, unit, i+1, len(attempts))

		if err := s.exec(ctx, s.timeouts.Stop, attempt.args...); err != nil {
			lastErr = err
			continue
		}
		if err := s.waitInactive(ctx, unit); err != nil {
			lastErr = err
			continue
		}
		s.resetFailed(ctx, unit)
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unable to stop %s", unit)
	}
	return lastErr
}

// Start tries start twice, then restart.
func (s *Systemctl) Start(ctx context.Context, unit string) error {
	attempts := []struct {
		description string
		args        []string
	}{
		{"start", []string{"start", unit}},
		{"retry start", []string{"start", unit}},
		{"aggressive restart", []string{"restart", unit}},
	}

	var lastErr error
	for i, attempt := range attempts {
		if i > 0 {
			if err := sleepWithContext(ctx, s.timeouts.Retry); err != nil {
				return err
			}
		}
		s.logger.Debug("Attempting %s for %s (%d/%d)", attempt.description, unit, i+1, len(attempts))

		if err := s.exec(ctx, s.timeouts.Start, attempt.args...); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unable to start %s", unit)
	}
	return lastErr
}

// IsActive treats transitional states as active.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	output, err := system.RunWithTimeout(ctx, s.runner, s.timeouts.Status, "systemctl", "is-active", unit)
	if err == nil {
		return true, nil
	}
	var te *system.TimeoutError
	if errors.As(err, &te) {
		return false, err
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	msg := strings.TrimSpace(string(output))
	if msg == "" {
		msg = err.Error()
	}
	return parseActiveState(unit, msg)
}

func parseActiveState(unit, state string) (bool, error) {
	lower := strings.ToLower(state)
	switch {
	case strings.Contains(lower, "deactivating"), strings.Contains(lower, "activating"), lower == "active", lower == "reloading":
		return true, nil
	case strings.Contains(lower, "inactive"), strings.Contains(lower, "failed"), strings.Contains(lower, "dead"):
		return false, nil
	}
	return false, fmt.Errorf("systemctl is-active %s failed: %s", unit, state)
}

func (s *Systemctl) waitInactive(ctx context.Context, unit string) error {
	timeout := s.timeouts.Verify
	if timeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%s still active after %s", unit, timeout)
		}

		active, err := s.IsActive(ctx, unit)
		if err != nil {
			return err
		}
		if !active {
			s.logger.Debug("%s stopped successfully", unit)
			return nil
		}

		if err := sleepWithContext(ctx, minDuration(remaining, s.timeouts.Poll)); err != nil {
			return err
		}
	}
}

func (s *Systemctl) resetFailed(ctx context.Context, unit string) {
	if _, err := system.RunWithTimeout(ctx, s.runner, s.timeouts.Status, "systemctl", "reset-failed", unit); err != nil {
		s.logger.Debug("systemctl reset-failed %s ignored: %v", unit, err)
	}
}
