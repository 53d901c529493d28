package tui

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Screen is a single full-screen dialog. It runs until a modal closes it or
// the abort context is cancelled.
type Screen struct {
	app      *tview.Application
	stopOnce sync.Once
	onStop   func()
}

// NewScreen returns a screen with the restore palette applied.
func NewScreen() *Screen {
	applyTheme()
	return &Screen{app: tview.NewApplication()}
}

func applyTheme() {
	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.BorderColor = Accent
	tview.Styles.TitleColor = Accent
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = LightGray
}

// Show makes p the focused root.
func (s *Screen) Show(p tview.Primitive) {
	s.app.SetRoot(p, true).SetFocus(p)
}

// Run blocks until Stop.
func (s *Screen) Run() error {
	release := watchAbort(s.Stop)
	defer release()
	return s.app.Run()
}

// Stop closes the screen. Later calls do nothing.
func (s *Screen) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		if s.onStop != nil {
			s.onStop()
			return
		}
		s.app.Stop()
	})
}
