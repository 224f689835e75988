// Package log provides a structured logging interface for landstack pipeline stages.
//
// The Logger interface is slog-compatible so that stage code does not depend
// on a concrete backend. The default backend is zerolog (see logger.go);
// TestLogger captures JSON lines for assertions.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.LabelKey, "BP",
//	    log.StageKey, log.StageBase,
//	)
//	logger.Info("learner fitted",
//	    log.LearnerKey, "rf",
//	    log.AUCKey, 0.97,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. With returns a child
// logger carrying the given fields on every subsequent record.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it is
	// attached as the record's error (with its stack trace when available).
	//
	//	logger.Error("ensemble fit failed", err, log.LabelKey, "CP")
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents the severity level of a log message.
// Values match log/slog so levels translate without a lookup table.
type Level int

const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers; stages receive one so tests can inject a TestLogger.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
