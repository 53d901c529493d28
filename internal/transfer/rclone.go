package transfer

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/pkg/utils"
)

// Rclone shells out to the rclone binary.
type Rclone struct {
	remote     string // rclone remote name, e.g. "gdrive"
	prefix     string // path inside the remote
	configPath string
	flags      []string
	runner     system.CommandRunner
	logger     *logging.Logger
}

// NewRclone parses location ("remote:path/inside") and returns a provider.
// configPath is passed as --config when the file exists.
func NewRclone(location, configPath string, flags []string, runner system.CommandRunner, logger *logging.Logger) *Rclone {
	remote, prefix := splitRemoteRef(strings.TrimSpace(location))
	if runner == nil {
		runner = system.OSRunner{}
	}
	return &Rclone{
		remote:     remote,
		prefix:     strings.Trim(prefix, "/"),
		configPath: configPath,
		flags:      flags,
		runner:     runner,
		logger:     logger,
	}
}

func splitRemoteRef(ref string) (remoteName, relPath string) {
	remoteName, relPath, _ = strings.Cut(ref, ":")
	return remoteName, relPath
}

// Name returns "rclone".
func (r *Rclone) Name() string { return "rclone" }

func (r *Rclone) base() string {
	return r.remote + ":" + r.prefix
}

// RemotePath returns "remote:prefix/name".
func (r *Rclone) RemotePath(name string) string {
	clean := path.Base(path.Clean("/" + name))
	if r.prefix != "" {
		clean = path.Join(r.prefix, clean)
	}
	return r.remote + ":" + clean
}

func (r *Rclone) args(subcommand string, rest ...string) []string {
	args := []string{subcommand}
	if r.configPath != "" && utils.FileExists(r.configPath) {
		args = append(args, "--config", r.configPath)
	}
	args = append(args, r.flags...)
	return append(args, rest...)
}

func (r *Rclone) fail(op, target string, output []byte, err error) error {
	text := strings.TrimSpace(string(output))
	kind := classifyOutput(text)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Backend: r.Name(), Op: op, Target: target, Kind: kind, Output: text, Err: err}
}

// List runs "rclone lsl --max-depth 1" on the remote location.
func (r *Rclone) List(ctx context.Context) ([]Object, error) {
	if !system.HasBinary("rclone") {
		return nil, &Error{Backend: r.Name(), Op: "list", Target: r.base(), Kind: KindOther, Err: errors.New("rclone binary not found in PATH")}
	}
	args := r.args("lsl", "--max-depth", "1", r.base())
	r.logger.Debug("Running: rclone %s", strings.Join(args, " "))
	output, err := r.runner.Run(ctx, "rclone", args...)
	if err != nil {
		return nil, r.fail("list", r.base(), output, err)
	}
	return parseLsl(string(output)), nil
}

// Download runs "rclone copyto <remote> <local>.part" and renames on success.
func (r *Rclone) Download(ctx context.Context, remotePath, localPath string) error {
	if !system.HasBinary("rclone") {
		return &Error{Backend: r.Name(), Op: "download", Target: remotePath, Kind: KindOther, Err: errors.New("rclone binary not found in PATH")}
	}
	if err := ensureParent(localPath); err != nil {
		return err
	}
	staged := partialPath(localPath)
	args := r.args("copyto", remotePath, staged)
	r.logger.Debug("Running: rclone %s", strings.Join(args, " "))
	output, err := r.runner.Run(ctx, "rclone", args...)
	if err != nil {
		err = r.fail("download", remotePath, output, err)
	}
	return commitDownload(staged, localPath, err)
}

// parseLsl parses "SIZE YYYY-MM-DD HH:MM:SS.fffffffff NAME" lines. Names
// containing a slash (deeper levels) are ignored.
func parseLsl(output string) []Object {
	var objects []Object
	for _, raw := range strings.Split(output, "\n") {
		fields := strings.Fields(raw)
		if len(fields) < 4 {
			continue
		}
		size, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		name := strings.Join(fields[3:], " ")
		if strings.Contains(name, "/") {
			continue
		}
		clock, _, _ := strings.Cut(fields[2], ".")
		mod, _ := time.Parse("2006-01-02 15:04:05", fields[1]+" "+clock)
		objects = append(objects, Object{Name: name, Size: size, ModTime: mod})
	}
	return objects
}
