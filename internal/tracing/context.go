package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	TraceIDKey  ContextKey = "trace_id"
	RunIDKey    ContextKey = "run_id"
	TaskIDKey   ContextKey = "task_id"
	TaskNameKey ContextKey = "task_name"
)

// TraceContext holds the identifiers carried through a task execution.
type TraceContext struct {
	TraceID  string
	RunID    string
	TaskID   string
	TaskName string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates an ID for one controller start.
func NewRunID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithTask tags ctx with the task being executed.
func WithTask(ctx context.Context, taskID, taskName string) context.Context {
	ctx = context.WithValue(ctx, TaskIDKey, taskID)
	return context.WithValue(ctx, TaskNameKey, taskName)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

func GetTaskID(ctx context.Context) string { return stringValue(ctx, TaskIDKey) }

func GetTaskName(ctx context.Context) string { return stringValue(ctx, TaskNameKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:  GetTraceID(ctx),
		RunID:    GetRunID(ctx),
		TaskID:   GetTaskID(ctx),
		TaskName: GetTaskName(ctx),
	}
}

// NewRunContext starts a fresh trace for one controller run.
func NewRunContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithRunID(ctx, NewRunID())
}

// LoggerFromContext returns logger enriched with the IDs found in ctx.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		lc = lc.Str("run_id", tc.RunID)
	}
	if tc.TaskID != "" {
		lc = lc.Str("task_id", tc.TaskID)
	}
	if tc.TaskName != "" {
		lc = lc.Str("task", tc.TaskName)
	}
	return lc.Logger()
}
