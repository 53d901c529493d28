package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/pkg/utils"
)

// Compose manages a container stack described by a compose file. The name
// passed to each method is the descriptor path.
type Compose struct {
	runtime  string
	runner   system.CommandRunner
	logger   *logging.Logger
	timeouts Timeouts
}

// NewCompose returns a provider using runtime ("docker" by default) with
// its compose plugin, falling back to the standalone docker-compose binary.
func NewCompose(runtime string, runner system.CommandRunner, timeouts Timeouts, logger *logging.Logger) *Compose {
	if runtime == "" {
		runtime = "docker"
	}
	if runner == nil {
		runner = system.OSRunner{}
	}
	return &Compose{runtime: runtime, runner: runner, logger: logger, timeouts: timeouts}
}

// command returns the compose invocation prefix, or nil when no capable
// runtime is installed.
func (c *Compose) command(ctx context.Context) []string {
	if system.HasBinary(c.runtime) {
		if _, err := system.RunWithTimeout(ctx, c.runner, c.timeouts.Status, c.runtime, "compose", "version"); err == nil {
			return []string{c.runtime, "compose"}
		}
	}
	if system.HasBinary("docker-compose") {
		return []string{"docker-compose"}
	}
	return nil
}

// Present requires both a capable runtime and the descriptor file.
func (c *Compose) Present(ctx context.Context, descriptor string) (bool, error) {
	if descriptor == "" || !utils.FileExists(descriptor) {
		return false, nil
	}
	return c.command(ctx) != nil, nil
}

func (c *Compose) run(ctx context.Context, timeout time.Duration, descriptor string, args ...string) ([]byte, error) {
	cmd := c.command(ctx)
	if cmd == nil {
		return nil, fmt.Errorf("compose %s: %w (no compose-capable runtime)", descriptor, ErrNotPresent)
	}
	full := append(append(append([]string{}, cmd[1:]...), "-f", descriptor), args...)
	out, err := system.RunWithTimeout(ctx, c.runner, timeout, cmd[0], full...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return out, fmt.Errorf("%s failed: %s", system.CommandLine(cmd[0], full...), msg)
		}
		return out, fmt.Errorf("%s failed: %w", system.CommandLine(cmd[0], full...), err)
	}
	return out, nil
}

// Stop brings the stack down.
func (c *Compose) Stop(ctx context.Context, descriptor string) error {
	_, err := c.run(ctx, c.timeouts.Stop, descriptor, "down")
	return err
}

// Start brings the stack up detached.
func (c *Compose) Start(ctx context.Context, descriptor string) error {
	_, err := c.run(ctx, c.timeouts.Start, descriptor, "up", "-d")
	return err
}

// IsActive reports whether at least one container of the stack is running.
func (c *Compose) IsActive(ctx context.Context, descriptor string) (bool, error) {
	out, err := c.run(ctx, c.timeouts.Status, descriptor, "ps", "--status", "running", "--quiet")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}
