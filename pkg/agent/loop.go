package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/taskqueue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (c *Controller) loop(r *run) {
	defer close(r.done)
	defer r.cancel()

	logger := tracing.LoggerFromContext(r.ctx, c.logger)
	logger.Debug().Msg("Worker loop started")

	for !r.stopped() {
		wait, err := c.iterate(r)
		if err != nil {
			logger.Error().Err(err).Dur("backoff", c.errorBackoff).Msg("Worker iteration failed")
			observability.RecordLoopError()
			wait = c.errorBackoff
		}
		if !r.sleep(wait) {
			break
		}
	}

	logger.Debug().Msg("Worker loop exited")
}

// iterate runs one loop step and returns how long to sleep before the next.
// A panic anywhere in the step is turned into an error.
func (c *Controller) iterate(r *run) (wait time.Duration, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in worker loop: %v", p)
		}
	}()

	if r.paused.Load() {
		return c.pauseInterval, nil
	}

	now := c.clock()
	if entries, ok := c.takeReload(); ok {
		c.scheduler.Reconcile(entries, now)
	}
	c.scheduler.Tick(r.ctx, now)
	r.update(func(s *Stats) { s.LastSchedulerTick = now })

	if r.stopped() || r.paused.Load() {
		return 0, nil
	}

	task, ok := c.queue.Dequeue()
	if !ok {
		return c.idleInterval, nil
	}
	if r.stopped() {
		// Stop landed after the check above; the next run picks it up.
		c.queue.Requeue(task)
		return 0, nil
	}

	c.execute(r, task)
	return 0, nil
}

// execute sends one task through the session and records the outcome.
// Failures are logged and the task is discarded.
func (c *Controller) execute(r *run, task taskqueue.Task) {
	started := c.clock()
	r.setCurrent(task.Name)
	r.update(func(s *Stats) { s.LastActivity = started })
	defer r.setCurrent("")

	ctx := tracing.WithTask(r.ctx, task.ID, task.Name)
	ctx, span := tracing.StartSpan(ctx, "warden.agent", "agent.execute",
		attribute.String("task.name", task.Name),
		attribute.String("task.source", string(task.Source)),
		attribute.Int("task.priority", task.Priority),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, c.logger)
	kind := r.session.Kind()

	logger.Info().
		Str("source", string(task.Source)).
		Int("priority", task.Priority).
		Msg("Executing task")

	reply, err := r.session.SendAndAwait(ctx, task.Prompt)
	finished := c.clock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.update(func(s *Stats) { s.TasksFailed++ })
		observability.RecordTask(kind, finished.Sub(started), false)
		logger.Error().Err(err).Msg("Task failed")
		return
	}

	if err := c.sink.Record(context.WithoutCancel(ctx), exchangelog.Exchange{
		TaskID:      task.ID,
		TaskName:    task.Name,
		Source:      string(task.Source),
		Priority:    task.Priority,
		SessionKind: kind,
		Prompt:      task.Prompt,
		Response:    reply,
		StartedAt:   started,
		FinishedAt:  finished,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record exchange")
	}

	r.update(func(s *Stats) { s.TasksCompleted++ })
	observability.RecordTask(kind, finished.Sub(started), true)
	span.SetAttributes(attribute.Int("reply_chars", len(reply)))
	logger.Info().Int("reply_chars", len(reply)).Dur("took", finished.Sub(started)).Msg("Task completed")

	if !r.stopped() && r.session.ShouldRotate() {
		c.rotate(ctx, r)
	}
}

func (c *Controller) rotate(ctx context.Context, r *run) {
	logger := tracing.LoggerFromContext(ctx, c.logger)
	if err := r.session.Rotate(ctx); err != nil {
		logger.Warn().Err(err).Msg("Conversation rotation failed")
	}
	r.update(func(s *Stats) { s.ConversationsRotated++ })
	logger.Info().Msg("Conversation rotated")
}
