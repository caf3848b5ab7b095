package ragcore

import (
	"github.com/onboardrag/core/internal/rag"
)

// LogLevel represents the severity of a log message and controls which
// messages the core emits.
type LogLevel = rag.LogLevel

// Log levels define the available logging severities. Higher levels include
// messages from all lower levels.
const (
	// LogLevelOff disables all logging output.
	LogLevelOff = rag.LogLevelOff
	// LogLevelError enables only error messages.
	LogLevelError = rag.LogLevelError
	// LogLevelWarn enables warning and error messages.
	LogLevelWarn = rag.LogLevelWarn
	// LogLevelInfo enables info, warning, and error messages.
	LogLevelInfo = rag.LogLevelInfo
	// LogLevelDebug enables all message types.
	LogLevelDebug = rag.LogLevelDebug
)

// Logger defines the structured logging operations used across the core.
// Implementations accept key-value pairs for log aggregation.
type Logger = rag.Logger

// SetLogLevel sets the global log level for the package. Messages more
// verbose than this level are not logged.
//
// Example usage:
//
//	ragcore.SetLogLevel(ragcore.LogLevelDebug)
func SetLogLevel(level LogLevel) {
	rag.SetGlobalLogLevel(level)
}

// Debug logs a message at debug level with optional key-value pairs.
//
// Example usage:
//
//	ragcore.Debug("chunked document", "documentID", id, "chunks", n)
func Debug(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Debug(msg, keysAndValues...)
}

// Info logs a message at info level with optional key-value pairs.
func Info(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Info(msg, keysAndValues...)
}

// Warn logs a message at warning level with optional key-value pairs.
func Warn(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Warn(msg, keysAndValues...)
}

// Error logs a message at error level with optional key-value pairs.
func Error(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Error(msg, keysAndValues...)
}
