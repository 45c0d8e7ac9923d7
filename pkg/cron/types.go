package cron

import (
	"context"
	"time"

	"github.com/harun/warden/pkg/taskqueue"
	"github.com/robfig/cron/v3"
)

// EntryConfig is the declarative form of a schedule entry.
type EntryConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	Cron    string `json:"cron" mapstructure:"cron"`
	TZ      string `json:"tz,omitempty" mapstructure:"tz"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// Entry is the runtime state of one named schedule.
type Entry struct {
	Name    string    `json:"name"`
	Expr    string    `json:"expr"`
	TZ      string    `json:"tz,omitempty"`
	Enabled bool      `json:"enabled"`
	NextRun time.Time `json:"next_run,omitempty"`
	LastRun time.Time `json:"last_run,omitempty"`
	Fires   int       `json:"fires"`
	Error   string    `json:"error,omitempty"`

	schedule cron.Schedule
	loc      *time.Location
}

// SkipReason explains why an entry will not fire.
type SkipReason string

const (
	SkipDisabled    SkipReason = "disabled"
	SkipInvalidExpr SkipReason = "invalid_expression"
	SkipRemoved     SkipReason = "removed"
)

// Skipped records an entry that was not armed.
type Skipped struct {
	Name   string     `json:"name"`
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// Enqueuer receives fired tasks. *taskqueue.Queue satisfies it.
type Enqueuer interface {
	EnqueueFrom(source taskqueue.Source, name, prompt string, priority int, metadata map[string]string) taskqueue.Task
}

// PromptFunc builds the prompt for an entry name.
type PromptFunc func(ctx context.Context, name string) string

func (c EntryConfig) sameAs(e *Entry) bool {
	return c.Cron == e.Expr && c.TZ == e.TZ && c.Enabled == e.Enabled && e.Error == ""
}
