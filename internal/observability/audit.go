package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/warden/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditKind groups audit events by their origin.
type AuditKind string

const (
	// AuditControl covers lifecycle calls and manual submissions on the control API.
	AuditControl AuditKind = "control"
	// AuditConfig covers changes applied from the config file.
	AuditConfig AuditKind = "config"
)

// AuditEvent is one operator-visible action.
type AuditEvent struct {
	Kind     AuditKind
	At       time.Time
	Actor    string
	Action   string
	OK       bool
	Metadata map[string]interface{}
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
}

var auditInst atomic.Pointer[AuditLogger]

func newAuditLogger(w io.Writer, closer io.Closer) *AuditLogger {
	return &AuditLogger{
		out:    zerolog.New(w).With().Str("stream", "audit").Logger(),
		closer: closer,
	}
}

// GetAuditLogger returns the process audit logger. Until InitAuditLogger
// succeeds, events go to stderr.
func GetAuditLogger() *AuditLogger {
	if a := auditInst.Load(); a != nil {
		return a
	}
	auditInst.CompareAndSwap(nil, newAuditLogger(os.Stderr, nil))
	return auditInst.Load()
}

// InitAuditLogger redirects audit events to the file at path. A previously
// installed file is closed.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if prev := auditInst.Swap(newAuditLogger(file, file)); prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record writes the event. The run and trace identifiers are taken from
// ctx, and the event is mirrored onto the active span.
func (a *AuditLogger) Record(ctx context.Context, ev AuditEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	traceID := tracing.GetTraceID(ctx)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+ev.Action, trace.WithAttributes(
			attribute.String("audit.kind", string(ev.Kind)),
			attribute.Bool("audit.ok", ev.OK),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.out.Log().
		Time("at", ev.At).
		Str("kind", string(ev.Kind)).
		Str("action", ev.Action).
		Bool("ok", ev.OK)
	if ev.Actor != "" {
		e = e.Str("actor", ev.Actor)
	}
	if runID := tracing.GetRunID(ctx); runID != "" {
		e = e.Str("run_id", runID)
	}
	if traceID != "" {
		e = e.Str("trace_id", traceID)
	}
	if len(ev.Metadata) > 0 {
		e = e.Interface("metadata", ev.Metadata)
	}
	e.Send()
}

// Close releases the underlying file, if any. Later writes go nowhere useful,
// so callers close only at shutdown.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// RecordControlAudit records a control API action and whether it succeeded.
func RecordControlAudit(ctx context.Context, action, actor string, success bool, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     AuditControl,
		Actor:    actor,
		Action:   action,
		OK:       success,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a change applied from the config file.
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     AuditConfig,
		Actor:    actor,
		Action:   action,
		OK:       true,
		Metadata: metadata,
	})
}
