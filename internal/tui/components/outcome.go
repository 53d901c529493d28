package components

import (
	"github.com/rivo/tview"

	"github.com/tis24dev/stackrestore/internal/tui"
)

// OutcomeText is the dialog body for a final state: symbol and headline,
// then details shown literally.
func OutcomeText(state, details string) string {
	style := tui.StyleFor(state)
	text := style.Symbol + " " + style.Headline
	if details != "" {
		text += "\n\n" + tview.Escape(details)
	}
	return text
}

// Outcome shows how a run ended until the operator closes it.
func Outcome(state, details string) error {
	s := tui.NewScreen()
	newModal(s, "Restore result", OutcomeText(state, details), tui.StyleFor(state).Color,
		[]string{buttonClose}, nil)
	return runScreen(s)
}
