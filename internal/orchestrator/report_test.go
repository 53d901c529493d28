package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/stackrestore/internal/input"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/internal/types"
)

func TestBestEffortRecordsAndNeverPanics(t *testing.T) {
	rep := NewReport(system.FixedClock{T: time.Unix(0, 0)}, newLogger())
	if err := rep.BestEffort("ok", func() error { return nil }); err != nil {
		t.Fatalf("ok action returned %v", err)
	}
	if err := rep.BestEffort("fails", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("failure not returned")
	}
	err := rep.BestEffort("panics", func() error { panic("oops") })
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("panic err = %v", err)
	}
	if rep.Failures() != 2 || len(rep.Outcomes) != 3 {
		t.Fatalf("failures=%d outcomes=%+v", rep.Failures(), rep.Outcomes)
	}
	if rep.Outcomes[1].Err != "boom" || rep.Outcomes[0].OK != true {
		t.Fatalf("outcomes = %+v", rep.Outcomes)
	}
}

func TestReportRunIDsAreUnique(t *testing.T) {
	a := NewReport(nil, nil)
	b := NewReport(nil, nil)
	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("run ids %q %q", a.RunID, b.RunID)
	}
}

func TestStageRecordsError(t *testing.T) {
	rep := NewReport(nil, nil)
	rep.BeginStage(StageSelect)(nil)
	rep.BeginStage(StageTransfer)(errors.New("network down"))
	if got := rep.StageNames(); len(got) != 2 || got[1] != StageTransfer {
		t.Fatalf("stages = %v", got)
	}
	if rep.Stages[1].Err != "network down" || rep.Stages[0].Err != "" {
		t.Fatalf("stage errors = %+v", rep.Stages)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want types.ExitCode
	}{
		{nil, types.ExitSuccess},
		{NewRunError(CategoryConfig, "setup", errors.New("x")), types.ExitConfigError},
		{NewRunError(CategorySelection, StageSelect, errors.New("x")), types.ExitSelectionError},
		{NewRunError(CategoryValidation, StageValidate, errors.New("x")), types.ExitValidationError},
		{NewRunError(CategoryCredential, "bootstrap", errors.New("x")), types.ExitCredentialError},
		{NewRunError(CategoryTransfer, StageTransfer, context.Canceled), types.ExitInterrupted},
		{NewRunError(CategoryGeneric, StageConfirm, input.ErrInputAborted), types.ExitInterrupted},
		{fmt.Errorf("wrapped: %w", NewRunError(CategoryApply, StageApply, errors.New("x"))), types.ExitApplyError},
		{errors.New("plain"), types.ExitGenericError},
	}
	for _, tc := range cases {
		if got := ExitCodeFor(tc.err); got != tc.want {
			t.Errorf("ExitCodeFor(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDiagnosticLine(t *testing.T) {
	err := NewRunError(CategorySelection, StageSelect, errors.New("no matching backup found"))
	want := "restore failed [selection]: select: no matching backup found"
	if got := Diagnostic(err); got != want {
		t.Fatalf("Diagnostic = %q, want %q", got, want)
	}
}
