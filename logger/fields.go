package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings so log queries stay stable.
const (
	// Identity
	FieldJobID      = "job_id"
	FieldRunID      = "run_id"
	FieldIdentifier = "identifier"
	FieldRow        = "row"

	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldUntil      = "until"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts
	FieldCount     = "count"
	FieldRows      = "rows"
	FieldRemaining = "remaining"
	FieldProgress  = "progress"

	// Status
	FieldStatus  = "status"
	FieldOutcome = "outcome"

	// Files
	FieldFile = "file"
	FieldPath = "path"

	FieldSymbol = "symbol" // subsystem symbol (꩜, ✿, ❀, ⊔ ...)
)

type contextKey string

const (
	jobIDKey contextKey = "logger_job_id"
	runIDKey contextKey = "logger_run_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRunID adds an orchestrator run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// FieldsFromContext extracts logging fields from context as key-value pairs.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}

	return fields
}

// FromContext returns base with the job and run fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
//	o := &Orchestrator{log: logger.ComponentLogger("pulse.batch")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
