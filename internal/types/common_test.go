package types

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LogLevelDebug, true},
		{"ADVANCED", LogLevelDebug, true},
		{"standard", LogLevelInfo, true},
		{"warn", LogLevelWarning, true},
		{"2", LogLevelError, true},
		{"none", LogLevelNone, true},
		{"verbose", LogLevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExitCodeString(t *testing.T) {
	if ExitApplyError.String() != "apply error" {
		t.Fatalf("unexpected string %q", ExitApplyError.String())
	}
	if ExitCode(99).String() != "unknown error" {
		t.Fatalf("unexpected string for unknown code")
	}
}
