package tui

import (
	"testing"

	"github.com/rivo/tview"
)

func TestNewScreenAppliesPalette(t *testing.T) {
	_ = NewScreen()
	if tview.Styles.BorderColor != Accent || tview.Styles.TitleColor != Accent {
		t.Fatalf("border=%v title=%v; want accent", tview.Styles.BorderColor, tview.Styles.TitleColor)
	}
}

func TestScreenStopRunsOnce(t *testing.T) {
	s := NewScreen()
	calls := 0
	s.onStop = func() { calls++ }
	s.Stop()
	s.Stop()
	if calls != 1 {
		t.Fatalf("stop ran %d times", calls)
	}
	var nilScreen *Screen
	nilScreen.Stop()
}
