package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tis24dev/stackrestore/internal/input"
	"github.com/tis24dev/stackrestore/internal/plan"
	"github.com/tis24dev/stackrestore/internal/snapshot"
	"github.com/tis24dev/stackrestore/internal/tui/components"
)

// CLIPrompter asks on a line-oriented terminal.
type CLIPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (c CLIPrompter) ConfirmPlan(ctx context.Context, p *plan.Plan) (bool, error) {
	question := fmt.Sprintf("Restore %s over %s? Services will be stopped", p.Descriptor.Name, p.RestoreRoot)
	ok, err := input.Confirm(ctx, bufio.NewReader(c.In), c.Out, question)
	return ok, input.MapInputError(err)
}

// TUIPrompter shows the plan in a tview modal and, once the run is over,
// its final state.
type TUIPrompter struct{}

var (
	tuiConfirm = components.Confirm
	tuiOutcome = components.Outcome
)

func (TUIPrompter) ConfirmPlan(ctx context.Context, p *plan.Plan) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var b strings.Builder
	if err := plan.Render(&b, p, plan.FormatText); err != nil {
		return false, err
	}
	b.WriteString("\nServices will be stopped while the archive is applied.")
	ok, err := tuiConfirm("Confirm restore", b.String())
	if err != nil {
		return false, err
	}
	// The modal closes on abort as well; report that as cancellation.
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return ok, nil
}

// ShowReport blocks until the operator closes the result dialog.
func (TUIPrompter) ShowReport(rep *Report) error {
	if rep == nil {
		return nil
	}
	return tuiOutcome(string(rep.FinalState), reportDetails(rep))
}

func reportDetails(rep *Report) string {
	var b strings.Builder
	if rep.Archive != "" {
		fmt.Fprintf(&b, "Archive: %s\n", rep.Archive)
	}
	if rep.SnapshotPath != "" {
		fmt.Fprintf(&b, "Safety snapshot: %s\n", rep.SnapshotPath)
		if rep.FinalState == StateStoppedUnrestored {
			fmt.Fprintf(&b, "Manual rollback: %s\n", snapshot.RollbackHint(rep.SnapshotPath, rep.RestoreRoot))
		}
	}
	for _, o := range rep.Outcomes {
		if !o.OK {
			fmt.Fprintf(&b, "Failed: %s (%s)\n", o.Name, o.Err)
		}
	}
	for _, h := range rep.Health {
		if !h.Active {
			fmt.Fprintf(&b, "Not running: %s\n", h.Member.Unit)
		}
	}
	if rep.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", rep.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}
