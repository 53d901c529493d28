// Package notify tells an external endpoint how a restore run ended.
// Notifications never change the outcome of the run.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/tis24dev/stackrestore/internal/types"
)

// NotificationStatus represents the overall status of a restore run
type NotificationStatus int

const (
	StatusSuccess NotificationStatus = iota
	StatusWarning
	StatusFailure
)

// String returns the string representation of NotificationStatus
func (s NotificationStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in payloads.
func (s NotificationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusFromRun maps an exit code and best-effort failure count to a status.
func StatusFromRun(exitCode, bestEffortFailures int) NotificationStatus {
	switch {
	case exitCode != types.ExitSuccess.Int():
		return StatusFailure
	case bestEffortFailures > 0:
		return StatusWarning
	default:
		return StatusSuccess
	}
}

// ActionOutcome is one best-effort action as reported to the endpoint.
type ActionOutcome struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NotificationData contains all information sent about a run
type NotificationData struct {
	Status        NotificationStatus `json:"status"`
	StatusMessage string             `json:"status_message"`
	ExitCode      int                `json:"exit_code"`

	Hostname string `json:"hostname"`
	RunID    string `json:"run_id"`
	Version  string `json:"version,omitempty"`

	Archive    string `json:"archive,omitempty"`
	Source     string `json:"source,omitempty"`
	FinalState string `json:"final_state"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"-"`
	// DurationHR is filled in by the notifier.
	DurationHR string `json:"duration"`

	SnapshotPath    string          `json:"snapshot_path,omitempty"`
	RestoredEntries int             `json:"restored_entries"`
	RestoredBytes   int64           `json:"restored_bytes"`
	Actions         []ActionOutcome `json:"actions,omitempty"`

	WarningCount int    `json:"warnings"`
	ErrorCount   int    `json:"errors"`
	Error        string `json:"error,omitempty"`
}

// NotificationResult represents the result of a notification attempt
type NotificationResult struct {
	Success  bool
	Method   string
	Error    error
	Duration time.Duration
	Metadata map[string]interface{}
}

// Notifier is the interface that must be implemented by all notification providers
type Notifier interface {
	Name() string
	IsEnabled() bool
	// Send returns an error only for failures the caller should log; it
	// never affects the run's exit code.
	Send(ctx context.Context, data *NotificationData) (*NotificationResult, error)
}

// FormatDuration formats a duration in human-readable format (e.g., "2h 15m 30s")
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return formatWithUnits(hours, minutes, seconds, "h", "m", "s")
	} else if minutes > 0 {
		return formatWithUnits(minutes, seconds, 0, "m", "s", "")
	}
	return formatWithUnits(seconds, 0, 0, "s", "", "")
}

func formatWithUnits(v1, v2, v3 int, u1, u2, u3 string) string {
	result := ""
	if v1 > 0 {
		result += strconv.Itoa(v1) + u1
	}
	if v2 > 0 && u2 != "" {
		if result != "" {
			result += " "
		}
		result += strconv.Itoa(v2) + u2
	}
	if v3 > 0 && u3 != "" {
		if result != "" {
			result += " "
		}
		result += strconv.Itoa(v3) + u3
	}
	return result
}
