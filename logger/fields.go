package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across autoboat.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldCycleID = "cycle_id"
	FieldCommand = "command"
	FieldChannel = "channel_id"
	FieldAuthor  = "author"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldBackoffMS  = "backoff_ms"
	FieldNextIn     = "next_in"
	FieldCooldown   = "cooldown"
	FieldDeadline   = "deadline"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount    = "count"
	FieldAttempt  = "attempt"
	FieldFailures = "failures"

	// Status
	FieldState   = "state"
	FieldOutcome = "outcome"

	// Network
	FieldEndpoint = "endpoint"

	FieldSymbol = "symbol" // component glyph (꩜, ✿, ❀, ⇌, ...)
)

// Context keys for propagating logging context
type contextKey string

const (
	cycleIDKey   contextKey = "logger_cycle_id"
	commandKey   contextKey = "logger_command"
	componentKey contextKey = "logger_component"
)

// WithCycleID adds a dispatch cycle ID to the context for logging
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// WithCommand adds a command name to the context for logging
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if cycleID, ok := ctx.Value(cycleIDKey).(string); ok && cycleID != "" {
		fields = append(fields, FieldCycleID, cycleID)
	}
	if command, ok := ctx.Value(commandKey).(string); ok && command != "" {
		fields = append(fields, FieldCommand, command)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base with the fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Dispatcher struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Dispatcher {
//	    return &Dispatcher{
//	        logger: logger.ComponentLogger("pulse.dispatch"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
