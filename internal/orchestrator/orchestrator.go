// Package orchestrator sequences a restore run: select, plan, confirm,
// pre-flight, transfer, validate, snapshot, stop, apply, start, health.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tis24dev/stackrestore/internal/apply"
	"github.com/tis24dev/stackrestore/internal/archive"
	"github.com/tis24dev/stackrestore/internal/checks"
	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/metrics"
	"github.com/tis24dev/stackrestore/internal/notify"
	"github.com/tis24dev/stackrestore/internal/plan"
	"github.com/tis24dev/stackrestore/internal/selector"
	"github.com/tis24dev/stackrestore/internal/services"
	"github.com/tis24dev/stackrestore/internal/snapshot"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/internal/transfer"
)

// ErrConfirmationRequired is returned when a run needs confirmation but no
// prompter is available and --yes was not given.
var ErrConfirmationRequired = errors.New("confirmation required: pass --yes for unattended runs")

// Options are the per-invocation choices.
type Options struct {
	Request   selector.Request
	DryRun    bool
	AssumeYes bool
	// Output receives the rendered plan. nil discards it.
	Output io.Writer
	Format string
}

// Orchestrator runs restores against one configuration.
type Orchestrator struct {
	deps      Deps
	cfg       *config.Config
	logger    *logging.Logger
	clock     system.Clock
	selector  *selector.Selector
	snapshots *snapshot.Engine
	applier   *apply.Engine
}

// New validates deps and wires the stage engines.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("orchestrator: config is required")
	case deps.Transfer == nil:
		return nil, errors.New("orchestrator: transfer provider is required")
	case deps.Codec == nil:
		return nil, errors.New("orchestrator: archive codec is required")
	case deps.Services == nil:
		return nil, errors.New("orchestrator: service controller is required")
	}
	if deps.Time == nil {
		deps.Time = system.RealClock{}
	}
	cfg := deps.Config
	naming := selector.Naming{Prefix: cfg.BackupPrefix, Extension: cfg.BackupExtension}
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger,
		clock:     deps.Time,
		selector:  selector.New(naming, deps.Transfer, cfg.WorkDir),
		snapshots: snapshot.NewEngine(deps.Codec, cfg.SafetyDir, cfg.RestoreRoot, deps.Time, deps.Logger),
		applier:   apply.NewEngine(deps.Codec, cfg.RestoreRoot, deps.Logger),
	}, nil
}

// List returns the remote archives matching the naming pattern, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]transfer.Object, error) {
	objects, err := o.selector.Objects(ctx)
	if err != nil {
		return nil, NewRunError(CategoryTransfer, StageSelect, err)
	}
	return objects, nil
}

// Run executes one restore. The report is always returned, also on error.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (rep *Report, err error) {
	rep = NewReport(o.clock, o.logger)
	rep.RestoreRoot = o.cfg.RestoreRoot
	state := StateAborted
	defer func() {
		rep.finish(state, err)
		o.logSummary(rep)
		if !opts.DryRun {
			o.publish(ctx, rep)
		}
	}()

	o.logger.Phase("Restore run %s", rep.RunID)

	// Select
	done := rep.BeginStage(StageSelect)
	desc, err := o.selector.Select(ctx, opts.Request)
	done(err)
	if err != nil {
		return rep, NewRunError(selectionCategory(err), StageSelect, err)
	}
	rep.Archive = desc.Name
	rep.Source = string(desc.Source)
	o.logger.Info("Selected %s (%s)", desc.Name, desc.Source)

	// Plan
	done = rep.BeginStage(StagePlan)
	p := plan.Build(o.cfg, desc)
	err = o.render(opts, p)
	done(err)
	if err != nil {
		return rep, NewRunError(CategoryConfig, StagePlan, err)
	}
	if opts.DryRun {
		o.logger.Info("Dry run: nothing was changed")
		state = StatePlanned
		return rep, nil
	}

	// Confirm
	done = rep.BeginStage(StageConfirm)
	ok, err := o.confirm(ctx, opts, p)
	done(err)
	if err != nil {
		return rep, NewRunError(CategoryGeneric, StageConfirm, err)
	}
	if !ok {
		o.logger.Info("Restore declined; nothing was changed")
		state = StateDeclined
		return rep, nil
	}
	if err = p.Consume(); err != nil {
		return rep, NewRunError(CategoryGeneric, StageConfirm, err)
	}

	// Pre-flight
	done = rep.BeginStage(StagePreflight)
	err = o.preflight(ctx, desc)
	done(err)
	if err != nil {
		return rep, err
	}

	// Transfer
	o.logger.Phase("Downloading %s", desc.RemotePath)
	done = rep.BeginStage(StageTransfer)
	err = o.deps.Transfer.Download(ctx, desc.RemotePath, desc.LocalPath)
	if err == nil {
		err = ctx.Err()
	}
	done(err)
	if err != nil {
		if transfer.IsNotFound(err) && desc.Source != selector.SourceLatest {
			err = fmt.Errorf("%s is not on the remote (check --backup/--date): %w", desc.Name, err)
		}
		return rep, NewRunError(CategoryTransfer, StageTransfer, err)
	}

	// Validate
	o.logger.Phase("Validating %s", desc.LocalPath)
	done = rep.BeginStage(StageValidate)
	listing, err := o.deps.Codec.List(ctx, desc.LocalPath)
	if err == nil {
		err = ctx.Err()
	}
	done(err)
	if err != nil {
		return rep, NewRunError(CategoryValidation, StageValidate, err)
	}
	o.logger.Info("Archive is readable: %d entries, %s", len(listing.Entries), humanize.Bytes(uint64(listing.TotalSize)))
	warnUncovered(o.logger, listing, o.cfg.Items())

	// Snapshot
	o.logger.Phase("Safety snapshot")
	done = rep.BeginStage(StageSnapshot)
	snap, err := o.snapshots.Take(ctx, o.cfg.Items())
	if err == nil {
		err = ctx.Err()
	}
	done(err)
	if err != nil {
		return rep, NewRunError(CategorySnapshot, StageSnapshot, err)
	}
	if snap.Taken {
		rep.SnapshotPath = snap.Path
	}

	// From here on the run completes regardless of cancellation.
	commit := context.WithoutCancel(ctx)
	targets := services.Targets{Aux: o.cfg.AuxService, Edge: o.cfg.EdgeService, ComposeFile: o.cfg.ComposeFile}

	o.logger.Phase("Stopping services")
	done = rep.BeginStage(StageStop)
	set := o.deps.Services.Detect(commit, targets)
	o.logger.Info("Managing %d of %d configured service(s)", len(set.Present()), len(set))
	o.deps.Services.Stop(commit, set, rep)
	done(nil)

	o.logger.Phase("Applying %s", desc.Name)
	done = rep.BeginStage(StageApply)
	result, err := o.applier.Apply(commit, apply.Request{
		Archive:         desc.LocalPath,
		Expected:        listing,
		SnapshotSettled: true,
		ServicesStopped: true,
	})
	done(err)
	if err != nil {
		o.reportApplyFailure(rep, err)
		state = StateStoppedUnrestored
		return rep, NewRunError(CategoryApply, StageApply, err)
	}
	rep.Entries = result.Entries
	rep.Bytes = result.Bytes

	o.logger.Phase("Starting services")
	done = rep.BeginStage(StageStart)
	o.deps.Services.Start(commit, set, rep)
	done(nil)

	done = rep.BeginStage(StageHealth)
	rep.Health = o.deps.Services.Health(commit, set)
	unhealthy := 0
	for _, h := range rep.Health {
		switch {
		case h.Err != nil:
			unhealthy++
			o.logger.Warning("Health of %s unknown: %v", h.Member.Unit, h.Err)
		case !h.Active:
			unhealthy++
			o.logger.Warning("%s is not running after restore", h.Member.Unit)
		default:
			o.logger.Info("%s is running", h.Member.Unit)
		}
	}
	done(nil)

	state = StateRestored
	if unhealthy > 0 || rep.Failures() > 0 {
		state = StateRestoredWithWarnings
	}
	return rep, nil
}

func selectionCategory(err error) Category {
	var terr *transfer.Error
	switch {
	case errors.Is(err, selector.ErrConflictingRequest), errors.Is(err, selector.ErrInvalidRequest):
		return CategoryConfig
	case errors.As(err, &terr):
		return CategoryTransfer
	}
	return CategorySelection
}

func (o *Orchestrator) render(opts Options, p *plan.Plan) error {
	if opts.Output == nil {
		return nil
	}
	format := opts.Format
	if format == "" {
		format = plan.FormatText
	}
	return plan.Render(opts.Output, p, format)
}

func (o *Orchestrator) confirm(ctx context.Context, opts Options, p *plan.Plan) (bool, error) {
	if opts.AssumeYes {
		o.logger.Info("Confirmation skipped (--yes)")
		return true, nil
	}
	if o.deps.Prompter == nil {
		return false, ErrConfirmationRequired
	}
	return o.deps.Prompter.ConfirmPlan(ctx, p)
}

func (o *Orchestrator) preflight(ctx context.Context, desc selector.Descriptor) error {
	checker := checks.NewChecker(o.logger, checks.CheckerConfig{
		WorkDir:        o.cfg.WorkDir,
		SafetyDir:      o.cfg.SafetyDir,
		LogPath:        o.cfg.LogPath,
		MinFreeBytes:   uint64(o.cfg.MinFreeSpaceMB) * 1024 * 1024,
		ArchiveBytes:   uint64(max(desc.Size, 0)),
		RequireRoot:    o.cfg.RequireRoot,
		SensitiveFiles: []string{o.cfg.ConfigPath, o.cfg.CredentialTarget},
	})
	results, err := checker.RunAllChecks(ctx)
	if err == nil {
		return nil
	}
	category := CategoryConfig
	if n := len(results); n > 0 && results[n-1].Name == "Disk Space" {
		category = CategoryDiskSpace
	}
	return NewRunError(category, StagePreflight, err)
}

func (o *Orchestrator) reportApplyFailure(rep *Report, err error) {
	o.logger.Critical("Apply failed: %v", err)
	o.logger.Critical("Services were left stopped; the system is NOT restored")
	if rep.SnapshotPath == "" {
		o.logger.Critical("No safety snapshot was taken (no restore item existed before the run)")
		return
	}
	o.logger.Critical("Safety snapshot: %s", rep.SnapshotPath)
	o.logger.Critical("Manual rollback: %s", snapshot.RollbackHint(rep.SnapshotPath, rep.RestoreRoot))
}

// warnUncovered flags configured items the archive has nothing for.
func warnUncovered(logger *logging.Logger, listing *archive.Listing, items []string) {
	names := listing.Names()
	for _, item := range items {
		prefix := archive.EntryName(item, true)
		file := archive.EntryName(item, false)
		found := false
		for _, n := range names {
			if n == file || strings.HasPrefix(n, prefix) {
				found = true
				break
			}
		}
		if !found {
			logger.Warning("Archive contains nothing for %s", item)
		}
	}
}

func (o *Orchestrator) logSummary(rep *Report) {
	o.logger.Phase("Summary")
	o.logger.Info("Run ID: %s", rep.RunID)
	if rep.Archive != "" {
		o.logger.Info("Archive: %s", rep.Archive)
	}
	if rep.SnapshotPath != "" {
		o.logger.Info("Safety snapshot: %s", rep.SnapshotPath)
	}
	if rep.Entries > 0 {
		o.logger.Info("Restored %d entries (%s)", rep.Entries, humanize.Bytes(uint64(rep.Bytes)))
	}
	if n := rep.Failures(); n > 0 {
		o.logger.Warning("%d best-effort action(s) failed", n)
	}
	o.logger.Info("Final state: %s (%s)", rep.FinalState, notify.FormatDuration(rep.Duration()))
}

// publish exports metrics and sends the notification. Both are best-effort.
func (o *Orchestrator) publish(ctx context.Context, rep *Report) {
	ctx = context.WithoutCancel(ctx)
	exit := ExitCodeFor(rep.Err).Int()
	warnings, errs := o.logger.Counts()

	if o.deps.Metrics != nil {
		m := &metrics.RestoreMetrics{
			Hostname:           o.deps.Hostname,
			Version:            o.deps.Version,
			RunID:              rep.RunID,
			Archive:            rep.Archive,
			FinalState:         string(rep.FinalState),
			StartTime:          rep.StartedAt,
			EndTime:            rep.EndedAt,
			ExitCode:           exit,
			ErrorCount:         int(errs),
			WarningCount:       int(warnings),
			BestEffortFailures: rep.Failures(),
			RestoredEntries:    rep.Entries,
			RestoredBytes:      rep.Bytes,
			SnapshotTaken:      rep.SnapshotPath != "",
		}
		if err := o.deps.Metrics.Export(m); err != nil {
			o.logger.Warning("Metrics export failed: %v", err)
		}
	}

	if o.deps.Notifier == nil || !o.deps.Notifier.IsEnabled() {
		return
	}
	data := &notify.NotificationData{
		Status:          notify.StatusFromRun(exit, rep.Failures()),
		ExitCode:        exit,
		Hostname:        o.deps.Hostname,
		RunID:           rep.RunID,
		Version:         o.deps.Version,
		Archive:         rep.Archive,
		Source:          rep.Source,
		FinalState:      string(rep.FinalState),
		StartTime:       rep.StartedAt,
		Duration:        rep.Duration(),
		SnapshotPath:    rep.SnapshotPath,
		RestoredEntries: rep.Entries,
		RestoredBytes:   rep.Bytes,
		WarningCount:    int(warnings),
		ErrorCount:      int(errs),
	}
	data.StatusMessage = fmt.Sprintf("restore %s", rep.FinalState)
	if rep.Err != nil {
		data.Error = Diagnostic(rep.Err)
	}
	for _, out := range rep.Outcomes {
		data.Actions = append(data.Actions, notify.ActionOutcome{Name: out.Name, OK: out.OK, Error: out.Err})
	}
	if _, err := o.deps.Notifier.Send(ctx, data); err != nil {
		o.logger.Warning("Notification via %s failed: %v", o.deps.Notifier.Name(), err)
	}
}
