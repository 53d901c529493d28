package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tis24dev/stackrestore/internal/archive"
	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/metrics"
	"github.com/tis24dev/stackrestore/internal/notify"
	"github.com/tis24dev/stackrestore/internal/plan"
	"github.com/tis24dev/stackrestore/internal/services"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/internal/transfer"
)

// Prompter asks the operator to confirm a plan before anything mutates.
type Prompter interface {
	ConfirmPlan(ctx context.Context, p *plan.Plan) (bool, error)
}

// Exporter writes the run metrics somewhere.
type Exporter interface {
	Export(m *metrics.RestoreMetrics) error
}

// Deps groups the collaborators of a run. Logger, Config, Transfer, Codec
// and Services are required; the rest are optional.
type Deps struct {
	Logger   *logging.Logger
	Config   *config.Config
	Transfer transfer.Provider
	Codec    archive.Codec
	Services *services.Controller
	Prompter Prompter
	Time     system.Clock
	Metrics  Exporter
	Notifier notify.Notifier

	Version  string
	Hostname string
}

// NewDeps builds production dependencies from cfg.
func NewDeps(ctx context.Context, cfg *config.Config, logger *logging.Logger, version string) (Deps, error) {
	runner := system.OSRunner{}

	provider, err := transfer.New(ctx, cfg, runner, logger)
	if err != nil {
		return Deps{}, NewRunError(CategoryConfig, "setup", err)
	}

	timeouts := services.DefaultTimeouts(time.Duration(cfg.ServiceTimeout) * time.Second)
	var units services.Provider
	switch cfg.ServiceBackend {
	case config.ServiceBackendDBus:
		units = services.NewDBus(timeouts, logger)
	default:
		units = services.NewSystemctl(runner, timeouts, logger)
	}
	compose := services.NewCompose(cfg.ContainerRuntime, runner, timeouts, logger)

	deps := Deps{
		Logger:   logger,
		Config:   cfg,
		Transfer: provider,
		Codec:    archive.NewTarGz(logger),
		Services: services.NewController(units, compose, logger),
		Time:     system.RealClock{},
		Version:  version,
	}
	if host, err := os.Hostname(); err == nil {
		deps.Hostname = host
	}

	if cfg.MetricsEnabled {
		deps.Metrics = metrics.NewPrometheusExporter(cfg.MetricsPath, logger)
	}
	notifier, err := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:        cfg.WebhookURL,
		Timeout:    time.Duration(cfg.WebhookTimeout) * time.Second,
		MaxRetries: 2,
	}, logger)
	if err != nil {
		return Deps{}, NewRunError(CategoryConfig, "setup", fmt.Errorf("webhook: %w", err))
	}
	if notifier.IsEnabled() {
		deps.Notifier = notifier
	}
	return deps, nil
}
