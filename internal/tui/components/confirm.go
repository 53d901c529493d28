// Package components holds the modal dialogs shown by interactive runs.
package components

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/stackrestore/internal/tui"
)

const (
	buttonRestore = "Restore"
	buttonCancel  = "Cancel"
	buttonClose   = "Close"

	navigationHint = "\n\n[yellow]TAB/arrows to switch, ENTER to select[white]"
)

var modalCreatedHook func(*tview.Modal)

// runScreen is swapped in tests; the real one blocks until the screen stops.
var runScreen = func(s *tui.Screen) error { return s.Run() }

func newModal(s *tui.Screen, title, text string, color tcell.Color, buttons []string, done func(label string)) *tview.Modal {
	modal := tview.NewModal().
		SetText(text).
		AddButtons(buttons).
		SetDoneFunc(func(_ int, label string) {
			if done != nil {
				done(label)
			}
			s.Stop()
		})
	modal.SetBorder(true).
		SetTitle(" " + title + " ").
		SetTitleColor(color).
		SetBorderColor(color).
		SetBackgroundColor(tcell.ColorBlack)
	if modalCreatedHook != nil {
		modalCreatedHook(modal)
	}
	s.Show(modal)
	return modal
}

// Confirm asks whether to go ahead with a restore. Only the Restore button
// confirms; Escape, Cancel and an aborted run all decline. message is shown
// literally.
func Confirm(title, message string) (bool, error) {
	s := tui.NewScreen()
	confirmed := false
	newModal(s, title, tview.Escape(message)+navigationHint, tui.Accent,
		[]string{buttonRestore, buttonCancel},
		func(label string) { confirmed = label == buttonRestore })
	if err := runScreen(s); err != nil {
		return false, err
	}
	return confirmed, nil
}
