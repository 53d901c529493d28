// Package checks runs the pre-flight validation that happens before any
// download or mutation.
package checks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/safefs"
)

// statTimeout bounds stat calls so a hung mount under the work or log
// directory fails the check instead of blocking the run.
const statTimeout = 10 * time.Second

var (
	osMkdirAll = os.MkdirAll
	geteuid    = os.Geteuid

	statPath = func(ctx context.Context, path string) (os.FileInfo, error) {
		return safefs.Stat(ctx, path, statTimeout)
	}

	// freeBytes reports the space available to unprivileged writers on the
	// filesystem holding path.
	freeBytes = func(ctx context.Context, path string) (uint64, error) {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return 0, err
		}
		return usage.Free, nil
	}
)

// CheckerConfig holds what the pre-flight checks look at.
type CheckerConfig struct {
	WorkDir   string
	SafetyDir string
	LogPath   string
	// MinFreeBytes is the configured floor on the work directory.
	MinFreeBytes uint64
	// ArchiveBytes is the expected download size, when known.
	ArchiveBytes uint64
	// RequireRoot makes a non-root run fatal instead of a warning.
	RequireRoot bool
	// SensitiveFiles should be 0600 and owned by root. Missing files are
	// ignored; mismatches only warn.
	SensitiveFiles []string
}

// CheckResult holds the result of a validation check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Error   error
}

// Checker performs pre-restore validation checks
type Checker struct {
	logger *logging.Logger
	config CheckerConfig
}

// NewChecker creates a new pre-restore checker
func NewChecker(logger *logging.Logger, config CheckerConfig) *Checker {
	return &Checker{logger: logger, config: config}
}

// RunAllChecks stops at the first failing check. Directories come first
// because the disk check needs them to exist.
func (c *Checker) RunAllChecks(ctx context.Context) ([]CheckResult, error) {
	c.logger.Debug("Running pre-restore checks")

	steps := []func(context.Context) CheckResult{
		c.CheckPrivileges,
		c.CheckSensitiveFiles,
		c.CheckDirectories,
		c.CheckDiskSpace,
	}
	var results []CheckResult
	for _, step := range steps {
		res := step(ctx)
		results = append(results, res)
		if !res.Passed {
			return results, fmt.Errorf("%s check failed: %s", res.Name, res.Message)
		}
	}
	c.logger.Debug("All pre-restore checks passed")
	return results, nil
}

// CheckPrivileges warns (or fails with RequireRoot) when not running as
// root, since system paths and ownership cannot be restored otherwise.
func (c *Checker) CheckPrivileges(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Privileges", Passed: true, Message: "running as root"}
	if geteuid() == 0 {
		return result
	}
	result.Message = "not running as root: ownership will not be restored"
	if c.config.RequireRoot {
		result.Passed = false
		result.Error = errors.New(result.Message)
		c.logger.Error("%s", result.Message)
		return result
	}
	c.logger.Warning("%s", result.Message)
	return result
}

// CheckSensitiveFiles warns about credential-bearing files that other users
// could read.
func (c *Checker) CheckSensitiveFiles(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Permissions", Passed: true, Message: "sensitive files are protected"}
	var issues int
	for _, path := range c.config.SensitiveFiles {
		if path == "" {
			continue
		}
		info, err := statPath(ctx, path)
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warning("Cannot stat %s: %v", path, err)
				issues++
			}
			continue
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			c.logger.Warning("%s should have permissions 600 (current %o)", path, perm)
			issues++
		}
		if geteuid() == 0 && !ownedByRoot(info) {
			c.logger.Warning("%s should be owned by root", path)
			issues++
		}
	}
	if issues > 0 {
		result.Message = fmt.Sprintf("%d permission issue(s) on sensitive files", issues)
	}
	return result
}

func ownedByRoot(info os.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	return st.Uid == 0
}

// CheckDirectories creates the work and snapshot directories when missing.
func (c *Checker) CheckDirectories(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Directories"}

	var dirs []string
	seen := map[string]bool{}
	addDir := func(path string) {
		cleaned := filepath.Clean(path)
		if path == "" || cleaned == "." || cleaned == "/" || seen[cleaned] {
			return
		}
		seen[cleaned] = true
		dirs = append(dirs, cleaned)
	}
	addDir(c.config.WorkDir)
	addDir(c.config.SafetyDir)
	if c.config.LogPath != "" {
		addDir(filepath.Dir(c.config.LogPath))
	}

	for _, dir := range dirs {
		info, err := statPath(ctx, dir)
		if err == nil {
			if !info.IsDir() {
				result.Error = fmt.Errorf("required path is not a directory: %s", dir)
				result.Message = result.Error.Error()
				c.logger.Error("%s", result.Message)
				return result
			}
			continue
		}
		if !os.IsNotExist(err) {
			result.Error = fmt.Errorf("failed to stat directory %s: %w", dir, err)
			result.Message = result.Error.Error()
			c.logger.Error("%s", result.Message)
			return result
		}
		if err := osMkdirAll(dir, 0o700); err != nil {
			result.Error = fmt.Errorf("failed to create directory %s: %w", dir, err)
			result.Message = result.Error.Error()
			c.logger.Error("%s", result.Message)
			return result
		}
		c.logger.Info("Created missing directory: %s", dir)
	}

	result.Passed = true
	result.Message = "All required directories exist"
	return result
}

// CheckDiskSpace verifies the work directory can hold the download plus the
// configured floor.
func (c *Checker) CheckDiskSpace(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Disk Space"}
	need := c.config.MinFreeBytes + c.config.ArchiveBytes
	if need == 0 || c.config.WorkDir == "" {
		result.Passed = true
		result.Message = "no disk space requirement configured"
		return result
	}

	free, err := freeBytes(ctx, c.config.WorkDir)
	if err != nil {
		result.Error = fmt.Errorf("disk usage for %s: %w", c.config.WorkDir, err)
		result.Message = result.Error.Error()
		c.logger.Error("%s", result.Message)
		return result
	}
	c.logger.Debug("%s: %s available, %s required", c.config.WorkDir, humanize.Bytes(free), humanize.Bytes(need))
	if free < need {
		result.Error = fmt.Errorf("insufficient space on %s: %s available, %s required",
			c.config.WorkDir, humanize.Bytes(free), humanize.Bytes(need))
		result.Message = result.Error.Error()
		c.logger.Error("%s", result.Message)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s available on %s", humanize.Bytes(free), c.config.WorkDir)
	return result
}
