package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tis24dev/stackrestore/internal/orchestrator"
	"github.com/tis24dev/stackrestore/internal/plan"
	"github.com/tis24dev/stackrestore/internal/selector"
)

type restoreOptions struct {
	dryRun    bool
	assumeYes bool
	useTUI    bool
	backup    string
	date      string
	output    string
}

// newRestoreCmd builds "restore", or its dry-run alias "plan".
func newRestoreCmd(global *globalOptions, streams Streams, planOnly bool) *cobra.Command {
	opts := &restoreOptions{}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Download, validate and apply a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if planOnly {
				opts.dryRun = true
			}
			return runRestore(cmd, global, streams, opts)
		},
	}
	if planOnly {
		cmd.Use = "plan"
		cmd.Short = "Print the restore plan without changing anything"
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.backup, "backup", "", "Restore this archive name instead of the latest")
	flags.StringVar(&opts.date, "date", "", "Restore the archive dated YYYY-MM-DD")
	flags.StringVarP(&opts.output, "output", "o", plan.FormatText, "Plan output format (text|json|yaml)")
	if !planOnly {
		flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Print the plan and exit without changing anything")
		flags.BoolVarP(&opts.assumeYes, "yes", "y", false, "Do not ask for confirmation")
		flags.BoolVar(&opts.useTUI, "tui", false, "Confirm in a full-screen dialog")
	}
	cmd.MarkFlagsMutuallyExclusive("backup", "date")
	return cmd
}

func runRestore(cmd *cobra.Command, global *globalOptions, streams Streams, opts *restoreOptions) error {
	format := strings.ToLower(strings.TrimSpace(opts.output))
	switch format {
	case plan.FormatText, plan.FormatJSON, plan.FormatYAML:
	default:
		return orchestrator.NewRunError(orchestrator.CategoryConfig, "flags",
			fmt.Errorf("unsupported --output %q (want text, json or yaml)", opts.output))
	}

	logger, err := newLogger(global, streams, format != plan.FormatText)
	if err != nil {
		return err
	}
	cfg, closeLog, err := loadConfig(global, logger, "restore")
	if err != nil {
		return err
	}
	defer closeLog()

	var prompter orchestrator.Prompter = orchestrator.CLIPrompter{In: streams.In, Out: streams.Out}
	if opts.useTUI {
		prompter = orchestrator.TUIPrompter{}
	}
	o, err := buildOrchestrator(cmd, cfg, logger, prompter)
	if err != nil {
		return err
	}

	rep, err := o.Run(cmd.Context(), orchestrator.Options{
		Request:   selector.Request{Name: opts.backup, Date: opts.date},
		DryRun:    opts.dryRun,
		AssumeYes: opts.assumeYes,
		Output:    streams.Out,
		Format:    format,
	})
	// An interrupted run closes its screens; do not open another one.
	if opts.useTUI && !opts.dryRun && rep != nil && cmd.Context().Err() == nil {
		if showErr := showOutcome(rep); showErr != nil {
			logger.Warning("Could not show the result dialog: %v", showErr)
		}
	}
	return err
}

var showOutcome = func(rep *orchestrator.Report) error {
	return orchestrator.TUIPrompter{}.ShowReport(rep)
}
