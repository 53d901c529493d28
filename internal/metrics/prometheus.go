// Package metrics exports the outcome of the last restore run in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tis24dev/stackrestore/internal/logging"
)

// TextfileName is the file written inside the collector directory.
const TextfileName = "stackrestore.prom"

// RestoreMetrics is the subset of a run report exported as metrics.
type RestoreMetrics struct {
	Hostname   string
	Version    string
	RunID      string
	Archive    string
	FinalState string

	StartTime time.Time
	EndTime   time.Time

	ExitCode           int
	ErrorCount         int
	WarningCount       int
	BestEffortFailures int
	RestoredEntries    int
	RestoredBytes      int64
	ArchiveBytes       int64
	SnapshotTaken      bool
}

// PrometheusExporter writes RestoreMetrics for the textfile collector.
type PrometheusExporter struct {
	textfileDir string
	logger      *logging.Logger
}

// NewPrometheusExporter creates a new PrometheusExporter using the provided directory.
func NewPrometheusExporter(textfileDir string, logger *logging.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		textfileDir: strings.TrimRight(textfileDir, "/"),
		logger:      logger,
	}
}

func gauge(reg *prometheus.Registry, name, help string, value float64) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "stackrestore", Name: name, Help: help})
	g.Set(value)
	reg.MustRegister(g)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Registry builds a fresh registry holding m.
func Registry(m *RestoreMetrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	end := m.EndTime
	if end.IsZero() {
		end = m.StartTime
	}
	// 0=success, 1=warning, 2=error
	status := 0.0
	if m.ExitCode != 0 {
		status = 2
	} else if m.WarningCount > 0 || m.BestEffortFailures > 0 {
		status = 1
	}

	gauge(reg, "last_run_start_time_seconds", "Unix timestamp of the last restore start", float64(m.StartTime.Unix()))
	gauge(reg, "last_run_end_time_seconds", "Unix timestamp of the last restore end", float64(end.Unix()))
	gauge(reg, "last_run_duration_seconds", "Duration of the last restore in seconds", end.Sub(m.StartTime).Seconds())
	gauge(reg, "last_run_exit_code", "Exit code of the last restore", float64(m.ExitCode))
	gauge(reg, "last_run_status", "Status of the last restore (0=success,1=warning,2=error)", status)
	gauge(reg, "last_run_errors", "Errors logged during the last restore", float64(m.ErrorCount))
	gauge(reg, "last_run_warnings", "Warnings logged during the last restore", float64(m.WarningCount))
	gauge(reg, "last_run_best_effort_failures", "Best-effort actions that failed during the last restore", float64(m.BestEffortFailures))
	gauge(reg, "last_run_restored_entries", "Archive entries written by the last restore", float64(m.RestoredEntries))
	gauge(reg, "last_run_restored_bytes", "Bytes written by the last restore", float64(m.RestoredBytes))
	gauge(reg, "last_run_archive_bytes", "Size of the archive used by the last restore", float64(m.ArchiveBytes))
	gauge(reg, "last_run_snapshot_taken", "Whether the last restore took a safety snapshot", boolValue(m.SnapshotTaken))

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stackrestore",
		Name:      "last_run_info",
		Help:      "Static information about the last restore run",
	}, []string{"hostname", "version", "run_id", "archive", "final_state"})
	info.WithLabelValues(m.Hostname, m.Version, m.RunID, m.Archive, m.FinalState).Set(1)
	reg.MustRegister(info)

	return reg
}

// Export writes m to TextfileName in the textfile directory.
func (pe *PrometheusExporter) Export(m *RestoreMetrics) error {
	if pe == nil || m == nil {
		return nil
	}
	if pe.textfileDir == "" {
		return fmt.Errorf("metrics textfile directory is empty")
	}
	if err := os.MkdirAll(pe.textfileDir, 0o755); err != nil {
		return fmt.Errorf("create metrics directory %s: %w", pe.textfileDir, err)
	}

	finalPath := filepath.Join(pe.textfileDir, TextfileName)
	if err := prometheus.WriteToTextfile(finalPath, Registry(m)); err != nil {
		return fmt.Errorf("write metrics file %s: %w", finalPath, err)
	}
	pe.logger.Debug("Prometheus metrics exported to %s", finalPath)
	return nil
}
