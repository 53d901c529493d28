package types

import "strings"

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a user supplied name or number to a LogLevel.
// "standard" and "advanced" are accepted as aliases for info and debug.
func ParseLogLevel(value string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "advanced", "5":
		return LogLevelDebug, true
	case "info", "standard", "4":
		return LogLevelInfo, true
	case "warning", "warn", "3":
		return LogLevelWarning, true
	case "error", "2":
		return LogLevelError, true
	case "critical", "1":
		return LogLevelCritical, true
	case "none", "0":
		return LogLevelNone, true
	}
	return LogLevelInfo, false
}
