// Package exchangelog records completed prompt/response exchanges.
package exchangelog

import (
	"context"
	"errors"
	"time"
)

// Exchange is one successful task execution.
type Exchange struct {
	TaskID      string    `json:"task_id"`
	TaskName    string    `json:"task_name"`
	Source      string    `json:"source"`
	Priority    int       `json:"priority"`
	SessionKind string    `json:"session_kind"`
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Sink persists exchanges. Failures are reported, never retried.
type Sink interface {
	Record(ctx context.Context, ex Exchange) error
}

// MultiSink fans an exchange out to every sink.
type MultiSink []Sink

// Record writes to all sinks and joins their errors.
func (m MultiSink) Record(ctx context.Context, ex Exchange) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ex); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every exchange.
type Discard struct{}

func (Discard) Record(context.Context, Exchange) error { return nil }
