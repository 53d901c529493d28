package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/stackrestore/internal/types"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "run"},
		{"   ", "run"},
		{"My Flow", "my-flow"},
		{"a__b", "a-b"},
		{"----", "run"},
		{"AA..BB", "aa-bb"},
		{"-restore-", "restore"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in, "run"); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunLogPath(t *testing.T) {
	at := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	path := RunLogPath("/var/log/stackrestore", "Restore", at)
	if filepath.Dir(path) != "/var/log/stackrestore" {
		t.Fatalf("unexpected dir in %q", path)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "restore-") || !strings.HasSuffix(base, "-20240115-083000.log") {
		t.Fatalf("unexpected name %q", base)
	}
}

func TestAttachRunLog(t *testing.T) {
	logger, _ := newTestLogger(types.LogLevelInfo)
	dir := filepath.Join(t.TempDir(), "logs")

	path, closeFn, err := AttachRunLog(logger, dir, "restore")
	if err != nil {
		t.Fatalf("AttachRunLog: %v", err)
	}
	logger.Info("hello")
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("run log missing message: %q", data)
	}
}
