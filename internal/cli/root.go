// Package cli wires the stackrestore commands onto the orchestrator.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/orchestrator"
	"github.com/tis24dev/stackrestore/internal/types"
	"github.com/tis24dev/stackrestore/internal/version"
)

// Streams are the process stdio handed to commands.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type globalOptions struct {
	configPath string
	logLevel   string
}

// newDeps is replaced in tests.
var newDeps = orchestrator.NewDeps

// NewRootCmd returns the root command.
func NewRootCmd(streams Streams) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "stackrestore",
		Short:         "Restore a host's application stack from a remote archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(streams.In)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "Path to configuration file")
	cmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug|info|warning|error|critical)")

	cmd.AddCommand(newRestoreCmd(opts, streams, false))
	cmd.AddCommand(newRestoreCmd(opts, streams, true))
	cmd.AddCommand(newListCmd(opts, streams))
	cmd.AddCommand(newBootstrapCmd(opts, streams))
	cmd.AddCommand(newVersionCmd(streams))
	return cmd
}

// Execute runs the CLI and returns the process exit code. Failures print a
// single diagnostic line on stderr.
func Execute(ctx context.Context, args []string, streams Streams) int {
	root := NewRootCmd(streams)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return types.ExitSuccess.Int()
	}
	var runErr *orchestrator.RunError
	if !errors.As(err, &runErr) && !errors.Is(err, context.Canceled) {
		// Usage errors from cobra itself.
		err = orchestrator.NewRunError(orchestrator.CategoryConfig, "usage", err)
	}
	fmt.Fprintln(streams.Err, orchestrator.Diagnostic(err))
	return orchestrator.ExitCodeFor(err).Int()
}

// newLogger builds the console logger. Machine-readable output keeps stdout
// clean by logging to stderr.
func newLogger(opts *globalOptions, streams Streams, toStderr bool) (*logging.Logger, error) {
	level := types.LogLevelInfo
	if opts.logLevel != "" {
		parsed, ok := types.ParseLogLevel(opts.logLevel)
		if !ok {
			return nil, orchestrator.NewRunError(orchestrator.CategoryConfig, "flags",
				fmt.Errorf("invalid --log-level %q", opts.logLevel))
		}
		level = parsed
	}
	logger := logging.New(level, isTerminal(streams.Out))
	logger.SetOutput(streams.Out)
	if toStderr {
		logger.SetOutput(streams.Err)
	}
	logging.SetDefaultLogger(logger)
	return logger, nil
}

// loadConfig reads the configuration and applies it to logger. The returned
// function closes any log file opened for the run.
func loadConfig(opts *globalOptions, logger *logging.Logger, flow string) (*config.Config, func(), error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, orchestrator.NewRunError(orchestrator.CategoryConfig, "config", err)
	}
	if opts.logLevel == "" {
		logger.SetLevel(cfg.DebugLevel)
	}
	if !cfg.UseColor {
		logger.SetUseColor(false)
	}
	logger.Debug("Configuration loaded from %s", cfg.ConfigPath)

	closeLog := func() {}
	if cfg.LogPath != "" {
		path, closeFn, err := openLog(logger, cfg.LogPath, flow)
		if err != nil {
			logger.Warning("Log file disabled: %v", err)
		} else {
			logger.Debug("Logging to %s", path)
			closeLog = closeFn
		}
	}
	return cfg, closeLog, nil
}

// openLog tees into LOG_PATH. A directory (or a path ending in "/") gets a
// fresh per-run file.
func openLog(logger *logging.Logger, logPath, flow string) (string, func(), error) {
	if strings.HasSuffix(logPath, "/") {
		return logging.AttachRunLog(logger, logPath, flow)
	}
	if info, err := os.Stat(logPath); err == nil && info.IsDir() {
		return logging.AttachRunLog(logger, logPath, flow)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return "", nil, err
	}
	if err := logger.OpenLogFile(logPath); err != nil {
		return "", nil, err
	}
	return logPath, func() { _ = logger.CloseLogFile() }, nil
}

func buildOrchestrator(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger, prompter orchestrator.Prompter) (*orchestrator.Orchestrator, error) {
	deps, err := newDeps(cmd.Context(), cfg, logger, version.String())
	if err != nil {
		return nil, err
	}
	if deps.Prompter == nil {
		deps.Prompter = prompter
	}
	o, err := orchestrator.New(deps)
	if err != nil {
		return nil, orchestrator.NewRunError(orchestrator.CategoryGeneric, "setup", err)
	}
	return o, nil
}
