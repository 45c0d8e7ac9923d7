// Package cron turns named cron entries into scheduled tasks.
//
// Invariants:
// - NextRun is always strictly after the instant it was computed from.
// - An entry fires at most once per Tick; missed firings are not backfilled.
// - Disabled or unparsable entries never fire.
// - Entries are never deleted at runtime; Reconcile disables removed ones.
//
// Usage:
//
//	s := cron.NewScheduler(cfgs, queue, builder.Build, logger)
//	s.Init(time.Now())
//	fired := s.Tick(ctx, time.Now())
//	_ = fired
package cron
