package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogPath builds "<dir>/<flow>-<host>-<timestamp>.log" for a run.
func RunLogPath(dir, flow string, at time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.log", sanitizeName(flow, "run"), hostLabel(), at.Format("20060102-150405"))
	return filepath.Join(dir, name)
}

// AttachRunLog creates dir if needed and tees the logger into a fresh run log.
// It returns the log path and a close function.
func AttachRunLog(l *Logger, dir, flow string) (string, func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	path := RunLogPath(dir, flow, l.now())
	if err := l.OpenLogFile(path); err != nil {
		return "", nil, err
	}
	return path, func() { _ = l.CloseLogFile() }, nil
}

func sanitizeName(name, fallback string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}

func hostLabel() string {
	host, err := os.Hostname()
	if err != nil {
		return "host"
	}
	return sanitizeName(host, "host")
}
