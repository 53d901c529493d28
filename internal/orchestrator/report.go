package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/services"
	"github.com/tis24dev/stackrestore/internal/system"
)

// FinalState is the documented end state of a run.
type FinalState string

const (
	StatePlanned              FinalState = "planned"
	StateDeclined             FinalState = "declined"
	StateAborted              FinalState = "aborted"
	StateRestored             FinalState = "restored"
	StateRestoredWithWarnings FinalState = "restored-with-warnings"
	StateStoppedUnrestored    FinalState = "stopped-unrestored"
)

// Stage names, in pipeline order.
const (
	StageSelect    = "select"
	StagePlan      = "plan"
	StageConfirm   = "confirm"
	StagePreflight = "preflight"
	StageTransfer  = "transfer"
	StageValidate  = "validate"
	StageSnapshot  = "snapshot"
	StageStop      = "stop"
	StageApply     = "apply"
	StageStart     = "start"
	StageHealth    = "health"
)

// StageRecord is one stage transition.
type StageRecord struct {
	Name    string
	Started time.Time
	Ended   time.Time
	Err     string
}

// Outcome is one best-effort action.
type Outcome struct {
	Name     string
	OK       bool
	Err      string
	Duration time.Duration
}

// Report accumulates everything that happened during a run.
type Report struct {
	mu sync.Mutex

	RunID     string
	StartedAt time.Time
	EndedAt   time.Time

	Archive      string
	Source       string
	RestoreRoot  string
	Stages       []StageRecord
	Outcomes     []Outcome
	Health       []services.Health
	SnapshotPath string
	Entries      int
	Bytes        int64
	FinalState   FinalState
	Err          error

	clock  system.Clock
	logger *logging.Logger
}

// NewReport starts a report with a fresh run ID.
func NewReport(clock system.Clock, logger *logging.Logger) *Report {
	if clock == nil {
		clock = system.RealClock{}
	}
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: clock.Now(),
		clock:     clock,
		logger:    logger,
	}
}

// BeginStage records the start of a stage and returns its finisher.
func (r *Report) BeginStage(name string) func(err error) {
	r.mu.Lock()
	r.Stages = append(r.Stages, StageRecord{Name: name, Started: r.clock.Now()})
	idx := len(r.Stages) - 1
	r.mu.Unlock()

	return func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.Stages[idx].Ended = r.clock.Now()
		if err != nil {
			r.Stages[idx].Err = err.Error()
		}
	}
}

// BestEffort runs fn and records its outcome. A failure is logged as a
// warning and returned for information only; callers continue regardless.
func (r *Report) BestEffort(name string, fn func() error) error {
	start := r.clock.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = panicError{value: p}
			}
		}()
		return fn()
	}()

	o := Outcome{Name: name, OK: err == nil, Duration: r.clock.Now().Sub(start)}
	if err != nil {
		o.Err = err.Error()
		r.logger.Warning("%s failed (continuing): %v", name, err)
	}
	r.mu.Lock()
	r.Outcomes = append(r.Outcomes, o)
	r.mu.Unlock()
	return err
}

// Failures counts failed best-effort actions.
func (r *Report) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}

// StageNames lists the stages entered, in order.
func (r *Report) StageNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

func (r *Report) finish(state FinalState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndedAt = r.clock.Now()
	r.FinalState = state
	r.Err = err
}

// Duration is the wall time of the run so far.
func (r *Report) Duration() time.Duration {
	end := r.EndedAt
	if end.IsZero() {
		end = r.clock.Now()
	}
	return end.Sub(r.StartedAt)
}

type panicError struct{ value interface{} }

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
