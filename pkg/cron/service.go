package cron

import (
	"context"
	"sync"
	"time"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/pkg/taskqueue"
	"github.com/rs/zerolog"
)

// Scheduler owns the schedule entries and enqueues their tasks when due.
// Init, Tick and Reconcile run on the worker goroutine; Snapshot and
// Skipped may be called from anywhere.
type Scheduler struct {
	mu      sync.Mutex
	configs []EntryConfig
	entries []*Entry
	skipped []Skipped

	enqueuer Enqueuer
	prompt   PromptFunc
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler. Entries are not armed until Init.
func NewScheduler(entries []EntryConfig, enqueuer Enqueuer, prompt PromptFunc, logger zerolog.Logger) *Scheduler {
	observability.EnsureRegistered()

	if prompt == nil {
		prompt = func(_ context.Context, name string) string { return name }
	}

	return &Scheduler{
		configs:  append([]EntryConfig(nil), entries...),
		enqueuer: enqueuer,
		prompt:   prompt,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Init (re)arms every entry, computing NextRun from now.
func (s *Scheduler) Init(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = s.entries[:0]
	s.skipped = nil
	for _, cfg := range s.configs {
		s.entries = append(s.entries, s.arm(cfg, now))
	}

	s.logger.Info().
		Int("entries", len(s.entries)).
		Int("skipped", len(s.skipped)).
		Msg("Scheduler initialized")
}

// arm builds an entry from cfg. Caller holds s.mu.
func (s *Scheduler) arm(cfg EntryConfig, now time.Time) *Entry {
	e := &Entry{
		Name:    cfg.Name,
		Expr:    cfg.Cron,
		TZ:      cfg.TZ,
		Enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		s.skip(e, SkipDisabled, "")
		return e
	}

	sched, loc, err := parse(cfg.Cron, cfg.TZ)
	if err == nil {
		e.schedule, e.loc = sched, loc
		e.NextRun, err = next(sched, loc, now)
	}
	if err != nil {
		e.Enabled = false
		e.Error = err.Error()
		s.skip(e, SkipInvalidExpr, e.Error)
		s.logger.Warn().
			Err(err).
			Str("entry", cfg.Name).
			Str("expr", cfg.Cron).
			Msg("Skipping schedule entry")
		return e
	}

	s.logger.Debug().
		Str("entry", e.Name).
		Time("next_run", e.NextRun).
		Msg("Schedule entry armed")
	return e
}

func (s *Scheduler) skip(e *Entry, reason SkipReason, msg string) {
	s.skipped = append(s.skipped, Skipped{Name: e.Name, Reason: reason, Error: msg})
	observability.RecordSchedulerSkip(string(reason))
}

type dueEntry struct {
	name string
	expr string
}

// Tick enqueues one task for every enabled entry whose NextRun is at or
// before now, then moves NextRun past now. It returns the number fired.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []dueEntry
	for _, e := range s.entries {
		if !e.Enabled || e.schedule == nil || e.NextRun.After(now) {
			continue
		}

		n, err := next(e.schedule, e.loc, now)
		if err != nil {
			e.Enabled = false
			e.Error = err.Error()
		} else {
			e.NextRun = n
		}
		e.LastRun = now
		e.Fires++
		due = append(due, dueEntry{name: e.Name, expr: e.Expr})
	}
	s.mu.Unlock()

	// Prompts may hit the data source, so build them outside the lock.
	for _, d := range due {
		prompt := s.prompt(ctx, d.name)
		task := s.enqueuer.EnqueueFrom(taskqueue.SourceScheduled, d.name, prompt, taskqueue.PriorityScheduled, map[string]string{
			"cron":     d.expr,
			"fired_at": now.UTC().Format(time.RFC3339),
		})
		observability.RecordSchedulerFire(d.name)

		s.logger.Info().
			Str("entry", d.name).
			Str("task_id", task.ID).
			Msg("Scheduled task enqueued")
	}

	return len(due)
}

// Reconcile applies a new entry set. Unchanged entries keep their NextRun,
// changed or new ones are re-armed from now, and entries missing from the
// set are kept but disabled.
func (s *Scheduler) Reconcile(entries []EntryConfig, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]*Entry, len(s.entries))
	for _, e := range s.entries {
		current[e.Name] = e
	}

	seen := make(map[string]bool, len(entries))
	configs := make([]EntryConfig, 0, len(entries))
	updated := make([]*Entry, 0, len(entries))
	s.skipped = nil

	for _, cfg := range entries {
		seen[cfg.Name] = true
		configs = append(configs, cfg)

		if old, ok := current[cfg.Name]; ok && cfg.sameAs(old) {
			updated = append(updated, old)
			if !old.Enabled {
				s.skip(old, SkipDisabled, "")
			}
			continue
		}
		updated = append(updated, s.arm(cfg, now))
	}

	removed := 0
	for _, e := range s.entries {
		if seen[e.Name] {
			continue
		}
		e.Enabled = false
		updated = append(updated, e)
		configs = append(configs, EntryConfig{Name: e.Name, Cron: e.Expr, TZ: e.TZ, Enabled: false})
		s.skip(e, SkipRemoved, "")
		removed++
	}

	s.entries = updated
	s.configs = configs

	s.logger.Info().
		Int("entries", len(s.entries)).
		Int("removed", removed).
		Msg("Schedules reconciled")
}

// Snapshot returns a copy of all entries in configuration order.
func (s *Scheduler) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
		out[i].schedule = nil
		out[i].loc = nil
	}
	return out
}

// Skipped lists entries that are not armed and why.
func (s *Scheduler) Skipped() []Skipped {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Skipped(nil), s.skipped...)
}
