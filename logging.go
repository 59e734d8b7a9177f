// logging.go: logging abstraction for the plugin host runtime
//
// The host does not mandate a logging framework. Any logger exposing the
// structured key-value style below can be plugged in, and plugins receive
// a scoped logger through their context so host operators keep a single
// stream of attributable log output.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the interface for logging within the plugin host.
//
// This interface is compatible with slog.Logger and most structured logging
// libraries. Arguments are alternating key-value pairs:
//
//	logger.Info("Plugin loaded successfully", "plugin", "geo-chat", "version", "1.2.0")
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info-level message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning-level message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error-level message with optional key-value pairs
	Error(msg string, args ...any)

	// With returns a new logger with the given key-value pairs added to context
	With(args ...any) Logger
}

// NoOpLogger is a logger that discards all log messages.
// Useful for testing or when logging is not desired.
type NoOpLogger struct{}

func (n NoOpLogger) Debug(msg string, args ...any) {}
func (n NoOpLogger) Info(msg string, args ...any)  {}
func (n NoOpLogger) Warn(msg string, args ...any)  {}
func (n NoOpLogger) Error(msg string, args ...any) {}
func (n NoOpLogger) With(args ...any) Logger       { return n }

// NewLogger creates a Logger from various logger types.
// Accepts:
//   - Logger: used directly
//   - nil: returns NoOpLogger
//
// Panics if the logger type is not supported.
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case nil:
		return NoOpLogger{}
	default:
		panic(fmt.Sprintf("unsupported logger type: %T (must implement pluginhost.Logger)", logger))
	}
}

// DefaultLogger returns a no-op logger as the safe default.
// Host applications should provide their own logger for production use.
func DefaultLogger() Logger {
	return NoOpLogger{}
}

// DiscardLogger returns a logger that discards all output.
// Alias for NoOpLogger for clarity in tests.
func DiscardLogger() Logger {
	return NoOpLogger{}
}

// TestLogMessage represents a captured log message for testing.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// TestLogger captures log messages for verification in tests.
type TestLogger struct {
	mu       sync.Mutex
	Messages []TestLogMessage
	context  []any
}

// NewTestLogger creates a new test logger that captures messages.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		Messages: make([]TestLogMessage, 0),
	}
}

func (t *TestLogger) log(level, msg string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	allArgs := make([]any, 0, len(t.context)+len(args))
	allArgs = append(allArgs, t.context...)
	allArgs = append(allArgs, args...)

	t.Messages = append(t.Messages, TestLogMessage{
		Level:   level,
		Message: msg,
		Args:    allArgs,
	})
}

func (t *TestLogger) Debug(msg string, args ...any) { t.log("DEBUG", msg, args...) }
func (t *TestLogger) Info(msg string, args ...any)  { t.log("INFO", msg, args...) }
func (t *TestLogger) Warn(msg string, args ...any)  { t.log("WARN", msg, args...) }
func (t *TestLogger) Error(msg string, args ...any) { t.log("ERROR", msg, args...) }

func (t *TestLogger) With(args ...any) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()

	newContext := make([]any, 0, len(t.context)+len(args))
	newContext = append(newContext, t.context...)
	newContext = append(newContext, args...)

	return &TestLogger{
		Messages: t.Messages,
		context:  newContext,
	}
}

// HasMessage checks if a message with the given level and message text was logged.
func (t *TestLogger) HasMessage(level, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.Messages {
		if m.Level == level && m.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = t.Messages[:0]
}

// loggerContextKey is the context key type for logger values.
type loggerContextKey struct{}

// ContextWithLogger returns a new context with the logger attached.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext extracts a logger from the context.
// Returns a NoOpLogger if no logger is found.
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}
	return NoOpLogger{}
}
