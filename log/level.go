package log

import "strings"

// Level specifies the log level.
type Level int

const (
	// DebugLevel logs everything, including per-dispatch details.
	DebugLevel Level = iota
	// InfoLevel logs runtime lifecycle events.
	InfoLevel
	// WarningLevel logs recoverable anomalies.
	WarningLevel
	// ErrorLevel logs failures.
	ErrorLevel
	// FatalLevel logs and then exits the process.
	FatalLevel
	// PanicLevel logs and then panics.
	PanicLevel
	// InvalidLevel is returned for unknown level names.
	InvalidLevel
)

var levelNames = [...]string{
	DebugLevel:   "debug",
	InfoLevel:    "info",
	WarningLevel: "warn",
	ErrorLevel:   "error",
	FatalLevel:   "fatal",
	PanicLevel:   "panic",
	InvalidLevel: "invalid",
}

// String returns the lower-case name of the level.
func (l Level) String() string {
	if l < DebugLevel || l > InvalidLevel {
		return levelNames[InvalidLevel]
	}
	return levelNames[l]
}

// ParseLevel converts a configuration level name into a Level.
// "trace" is accepted as an alias of debug.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return DebugLevel
	case "info", "":
		return InfoLevel
	case "warn", "warning":
		return WarningLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	case "panic":
		return PanicLevel
	default:
		return InvalidLevel
	}
}
