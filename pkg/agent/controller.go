package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/session"
	"github.com/harun/warden/pkg/taskqueue"
	"github.com/rs/zerolog"
)

// Config wires a Controller to its collaborators.
type Config struct {
	Queue          *taskqueue.Queue
	Scheduler      *cron.Scheduler
	SessionFactory session.Factory
	Sink           exchangelog.Sink
	Logger         zerolog.Logger

	CheckInterval time.Duration
	PauseInterval time.Duration
	IdleCap       time.Duration
	ErrorBackoff  time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Controller owns the lifecycle state machine and the worker loop.
type Controller struct {
	queue     *taskqueue.Queue
	scheduler *cron.Scheduler
	factory   session.Factory
	sink      exchangelog.Sink
	logger    zerolog.Logger
	clock     func() time.Time

	pauseInterval time.Duration
	idleInterval  time.Duration
	errorBackoff  time.Duration

	mu       sync.Mutex
	state    State
	starting bool
	run      *run

	reload        []cron.EntryConfig
	reloadPending bool
}

// New creates a stopped controller.
func New(cfg Config) (*Controller, error) {
	observability.EnsureRegistered()

	if cfg.Queue == nil {
		return nil, fmt.Errorf("task queue is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.SessionFactory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if cfg.CheckInterval < 0 || cfg.PauseInterval < 0 || cfg.IdleCap < 0 || cfg.ErrorBackoff < 0 {
		return nil, fmt.Errorf("intervals must not be negative")
	}

	sink := cfg.Sink
	if sink == nil {
		sink = exchangelog.Discard{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	check := orDefault(cfg.CheckInterval, DefaultCheckInterval)
	idle := orDefault(cfg.IdleCap, DefaultIdleCap)
	if check < idle {
		idle = check
	}

	c := &Controller{
		queue:         cfg.Queue,
		scheduler:     cfg.Scheduler,
		factory:       cfg.SessionFactory,
		sink:          sink,
		logger:        cfg.Logger.With().Str("component", "agent").Logger(),
		clock:         clock,
		pauseInterval: orDefault(cfg.PauseInterval, DefaultPauseInterval),
		idleInterval:  idle,
		errorBackoff:  orDefault(cfg.ErrorBackoff, DefaultErrorBackoff),
		state:         StateStopped,
	}
	observability.SetAgentState(string(StateStopped), allStates)
	return c, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// Start opens a fresh session and spawns the worker.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped || c.starting {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.starting = true
	c.mu.Unlock()

	sess, err := c.openSession(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to start agent")
		return err
	}

	now := c.clock()
	if c.reloadPending {
		c.scheduler.Reconcile(c.reload, now)
		c.reload, c.reloadPending = nil, false
	}
	c.scheduler.Init(now)

	r := newRun(uuid.New().String(), sess, now)
	c.run = r
	c.setState(StateRunning)
	go c.loop(r)

	c.logger.Info().
		Str("run_id", r.id).
		Str("session", sess.Kind()).
		Int("queued", c.queue.Size()).
		Msg("Agent started")
	return nil
}

func (c *Controller) openSession(ctx context.Context) (session.Session, error) {
	sess, err := c.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	// The browser lives as long as the context it was opened with, so the
	// session must not die with the caller's request.
	if err := sess.Open(context.WithoutCancel(ctx)); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return sess, nil
}

// Stop signals the worker and closes the session without waiting.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return ErrNotRunning
	}
	r := c.run
	c.setState(StateStopped)
	c.mu.Unlock()

	r.halt()
	if err := r.session.Close(); err != nil {
		c.logger.Warn().Err(err).Str("run_id", r.id).Msg("Failed to close session")
	}

	c.logger.Info().Str("run_id", r.id).Msg("Agent stopped")
	return nil
}

// Wait blocks until the most recent worker has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Pause stops ticking and dequeuing at the next iteration boundary.
func (c *Controller) Pause() error {
	return c.setPaused(true)
}

// Resume undoes Pause.
func (c *Controller) Resume() error {
	return c.setPaused(false)
}

func (c *Controller) setPaused(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return ErrNotRunning
	}

	target := StateRunning
	if paused {
		target = StatePaused
	}
	if c.state == target {
		return nil
	}

	c.run.paused.Store(paused)
	c.setState(target)
	c.run.wakeUp()

	c.logger.Info().Str("state", string(target)).Msg("Agent state changed")
	return nil
}

// setState updates state and the gauge. Caller holds c.mu.
func (c *Controller) setState(s State) {
	c.state = s
	observability.SetAgentState(string(s), allStates)
}

// Enqueue submits a manual task. It is accepted in any state.
func (c *Controller) Enqueue(name, prompt string, priority int, metadata map[string]string) taskqueue.Task {
	if name == "" {
		name = DefaultManualTaskName
	}
	task := c.queue.EnqueueFrom(taskqueue.SourceManual, name, prompt, priority, metadata)

	c.logger.Info().
		Str("task_id", task.ID).
		Str("task", task.Name).
		Int("priority", task.Priority).
		Msg("Manual task enqueued")

	c.mu.Lock()
	if c.run != nil && c.state == StateRunning {
		c.run.wakeUp()
	}
	c.mu.Unlock()
	return task
}

// ReloadSchedules stores a new entry set for the worker to apply at its
// next iteration, or at the next Start when stopped.
func (c *Controller) ReloadSchedules(entries []cron.EntryConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reload = append([]cron.EntryConfig(nil), entries...)
	c.reloadPending = true
	if c.run != nil && c.state != StateStopped {
		c.run.wakeUp()
	}
	c.logger.Info().Int("entries", len(entries)).Msg("Schedule reload requested")
}

func (c *Controller) takeReload() ([]cron.EntryConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reloadPending {
		return nil, false
	}
	entries := c.reload
	c.reload, c.reloadPending = nil, false
	return entries, true
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot for the control surface.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state := c.state
	r := c.run
	c.mu.Unlock()

	st := Status{
		State:     state,
		QueueSize: c.queue.Size(),
		Pending:   c.queue.Pending(),
		Schedules: c.scheduler.Snapshot(),
		Skipped:   c.scheduler.Skipped(),
	}
	if r != nil {
		st.RunID = r.id
		st.Stats = r.snapshot()
		st.CurrentTask = r.currentTask()
		if state != StateStopped {
			ss := r.session.State()
			st.Session = &ss
		}
	}
	return st
}
