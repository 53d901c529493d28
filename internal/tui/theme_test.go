package tui

import "testing"

func TestStyleForFinalStates(t *testing.T) {
	tests := []struct {
		state  string
		symbol string
	}{
		{"restored", "✓"},
		{"restored-with-warnings", "⚠"},
		{"stopped-unrestored", "✗"},
		{"aborted", "✗"},
		{"declined", "ℹ"},
		{"planned", "ℹ"},
	}
	for _, tt := range tests {
		if got := StyleFor(tt.state).Symbol; got != tt.symbol {
			t.Errorf("StyleFor(%q).Symbol = %q, want %q", tt.state, got, tt.symbol)
		}
	}
	if StyleFor("stopped-unrestored").Color != ErrorRed {
		t.Error("stopped-unrestored should be red")
	}
	if s := StyleFor("mystery"); s.Headline != "mystery" || s.Color != LightGray {
		t.Errorf("unknown state style = %+v", s)
	}
}
