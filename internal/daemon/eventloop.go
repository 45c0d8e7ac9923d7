package daemon

import (
	"context"
	"time"
)

// DefaultMaintenanceInterval is how often the event loop runs housekeeping.
const DefaultMaintenanceInterval = 30 * time.Second

// EventLoop runs periodic host maintenance next to the agent worker.
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: DefaultMaintenanceInterval,
	}
}

// Run ticks until ctx is cancelled.
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.zl.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.zl.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks checks the data source and logs agent progress.
func (e *EventLoop) processTasks(ctx context.Context) {
	if e.daemon.source != nil {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := e.daemon.source.Health(healthCtx); err != nil {
			e.daemon.zl.Warn().Err(err).Msg("Data source health check failed")
		}
		cancel()
	}

	st := e.daemon.controller.Status()
	if st.QueueSize > 0 || st.CurrentTask != "" {
		ev := e.daemon.zl.Debug().
			Str("state", string(st.State)).
			Int("queued", st.QueueSize).
			Int64("completed", st.Stats.TasksCompleted).
			Int64("failed", st.Stats.TasksFailed)
		if st.CurrentTask != "" {
			ev = ev.Str("current_task", st.CurrentTask)
		}
		ev.Msg("Agent stats")
	}
}

// HandleShutdown waits briefly for the agent worker to exit.
func (e *EventLoop) HandleShutdown() {
	e.daemon.zl.Info().Msg("Handling graceful shutdown")

	done := make(chan struct{})
	go func() {
		e.daemon.controller.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.daemon.zl.Info().Msg("Agent worker exited")
	case <-time.After(shutdownTimeout):
		e.daemon.zl.Warn().Msg("Timeout waiting for agent worker")
	}
}
