package tui

import (
	"github.com/gdamore/tcell/v2"
)

var (
	Accent = tcell.NewRGBColor(14, 165, 233) // #0EA5E9

	SuccessGreen  = tcell.NewRGBColor(34, 197, 94)  // #22C55E
	ErrorRed      = tcell.NewRGBColor(239, 68, 68)  // #EF4444
	WarningYellow = tcell.NewRGBColor(234, 179, 8)  // #EAB308
	InfoBlue      = tcell.NewRGBColor(59, 130, 246) // #3B82F6

	LightGray = tcell.ColorLightGray
)

// StateStyle is how a run's final state is presented.
type StateStyle struct {
	Color    tcell.Color
	Symbol   string
	Headline string
}

var stateStyles = map[string]StateStyle{
	"restored":               {SuccessGreen, "✓", "Restore completed"},
	"restored-with-warnings": {WarningYellow, "⚠", "Restored with warnings"},
	"stopped-unrestored":     {ErrorRed, "✗", "Apply failed: services left stopped, system NOT restored"},
	"aborted":                {ErrorRed, "✗", "Restore aborted"},
	"declined":               {InfoBlue, "ℹ", "Restore declined; nothing was changed"},
	"planned":                {InfoBlue, "ℹ", "Plan only; nothing was changed"},
}

// StyleFor returns the presentation of a final state. Unknown states get a
// neutral style that repeats the state name.
func StyleFor(state string) StateStyle {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return StateStyle{Color: LightGray, Symbol: "•", Headline: state}
}
