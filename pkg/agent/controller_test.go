package agent

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/session"
	"github.com/harun/warden/pkg/taskqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = time.Millisecond
)

type fakeSession struct {
	mu        sync.Mutex
	openErr   error
	sendErr   error
	panicOnce bool
	threshold int
	messages  int
	rotations int
	opened    bool
	closed    bool
	prompts   []string
}

func (f *fakeSession) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.opened = false
	return nil
}

func (f *fakeSession) SendAndAwait(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnce {
		f.panicOnce = false
		panic("page crashed")
	}
	f.prompts = append(f.prompts, prompt)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.messages++
	return "reply to " + prompt, nil
}

func (f *fakeSession) ShouldRotate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold > 0 && f.messages >= f.threshold
}

func (f *fakeSession) Rotate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = 0
	f.rotations++
	return nil
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.State{Kind: "fake", MessageCount: f.messages, RotationThreshold: f.threshold, Open: f.opened}
}

func (f *fakeSession) Kind() string { return "fake" }

func (f *fakeSession) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func factoryOf(sessions ...*fakeSession) session.Factory {
	var mu sync.Mutex
	i := 0
	return func() (session.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		s := sessions[i]
		if i < len(sessions)-1 {
			i++
		}
		return s, nil
	}
}

type recordingSink struct {
	mu        sync.Mutex
	err       error
	exchanges []exchangelog.Exchange
}

func (s *recordingSink) Record(_ context.Context, ex exchangelog.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, ex)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}

type fakeClock struct {
	now atomic.Pointer[time.Time]
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.set(t)
	return c
}

func (c *fakeClock) set(t time.Time) { c.now.Store(&t) }
func (c *fakeClock) Now() time.Time  { return *c.now.Load() }

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

type harness struct {
	ctrl  *Controller
	queue *taskqueue.Queue
	sink  *recordingSink
}

func newHarness(t *testing.T, factory session.Factory, entries []cron.EntryConfig, clock func() time.Time) *harness {
	t.Helper()

	q := taskqueue.New()
	sink := &recordingSink{}
	sched := cron.NewScheduler(entries, q, func(_ context.Context, name string) string {
		return "prompt for " + name
	}, testLogger())

	ctrl, err := New(Config{
		Queue:          q,
		Scheduler:      sched,
		SessionFactory: factory,
		Sink:           sink,
		Logger:         testLogger(),
		CheckInterval:  2 * time.Millisecond,
		PauseInterval:  2 * time.Millisecond,
		ErrorBackoff:   2 * time.Millisecond,
		Clock:          clock,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = ctrl.Stop()
		ctrl.Wait()
	})
	return &harness{ctrl: ctrl, queue: q, sink: sink}
}

func TestNew_Validation(t *testing.T) {
	q := taskqueue.New()
	sched := cron.NewScheduler(nil, q, nil, testLogger())
	factory := factoryOf(&fakeSession{})

	_, err := New(Config{Scheduler: sched, SessionFactory: factory})
	assert.Error(t, err)

	_, err = New(Config{Queue: q, SessionFactory: factory})
	assert.Error(t, err)

	_, err = New(Config{Queue: q, Scheduler: sched})
	assert.Error(t, err)

	_, err = New(Config{Queue: q, Scheduler: sched, SessionFactory: factory, CheckInterval: -time.Second})
	assert.Error(t, err)

	ctrl, err := New(Config{Queue: q, Scheduler: sched, SessionFactory: factory, CheckInterval: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Second, ctrl.idleInterval)
	assert.Equal(t, StateStopped, ctrl.State())
}

func TestController_Lifecycle(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), nil, nil)

	assert.ErrorIs(t, h.ctrl.Stop(), ErrNotRunning)
	assert.ErrorIs(t, h.ctrl.Pause(), ErrNotRunning)
	assert.ErrorIs(t, h.ctrl.Resume(), ErrNotRunning)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, StateRunning, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, h.ctrl.Pause())
	require.NoError(t, h.ctrl.Pause())
	assert.Equal(t, StatePaused, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, h.ctrl.Resume())
	require.NoError(t, h.ctrl.Resume())
	assert.Equal(t, StateRunning, h.ctrl.State())

	require.NoError(t, h.ctrl.Stop())
	h.ctrl.Wait()
	assert.Equal(t, StateStopped, h.ctrl.State())
	assert.True(t, sess.isClosed())
	assert.ErrorIs(t, h.ctrl.Stop(), ErrNotRunning)
}

func TestController_OpenFailureStaysStopped(t *testing.T) {
	sess := &fakeSession{openErr: errors.New("chrome not found")}
	h := newHarness(t, factoryOf(sess), nil, nil)

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, StateStopped, h.ctrl.State())
	assert.True(t, sess.isClosed())

	t.Run("factory error", func(t *testing.T) {
		h := newHarness(t, func() (session.Session, error) {
			return nil, errors.New("unknown kind")
		}, nil, nil)
		assert.Error(t, h.ctrl.Start(context.Background()))
		assert.Equal(t, StateStopped, h.ctrl.State())
	})
}

func TestController_ExecutesInPriorityOrder(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), nil, nil)

	h.queue.Enqueue("A", "a", 5, nil)
	h.queue.Enqueue("B", "b", 1, nil)
	h.queue.Enqueue("C", "c", 5, nil)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return len(sess.sent()) == 3 }, waitFor, tick)

	assert.Equal(t, []string{"b", "a", "c"}, sess.sent())
	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 3 }, waitFor, tick)
	assert.Equal(t, 3, h.sink.count())

	h.sink.mu.Lock()
	first := h.sink.exchanges[0]
	h.sink.mu.Unlock()
	assert.Equal(t, "B", first.TaskName)
	assert.Equal(t, "reply to b", first.Response)
	assert.Equal(t, "fake", first.SessionKind)
}

func TestController_PauseKeepsQueue(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), nil, nil)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Pause())
	time.Sleep(20 * time.Millisecond)

	h.ctrl.Enqueue("one", "p1", 5, nil)
	h.ctrl.Enqueue("two", "p2", 5, nil)
	time.Sleep(30 * time.Millisecond)

	assert.Empty(t, sess.sent())
	assert.Equal(t, 2, h.ctrl.Status().QueueSize)

	require.NoError(t, h.ctrl.Resume())
	require.Eventually(t, func() bool { return len(sess.sent()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"p1", "p2"}, sess.sent())
}

func TestController_PausedDoesNotTick(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), []cron.EntryConfig{
		{Name: "every_minute", Cron: "* * * * *", Enabled: true},
	}, clock.Now)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Pause())
	time.Sleep(20 * time.Millisecond)

	clock.set(clock.Now().Add(5 * time.Minute))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.queue.Size())
	assert.Empty(t, sess.sent())

	require.NoError(t, h.ctrl.Resume())
	require.Eventually(t, func() bool { return len(sess.sent()) == 1 }, waitFor, tick)
	assert.Equal(t, "prompt for every_minute", sess.sent()[0])
}

func TestController_StopStartResetsStats(t *testing.T) {
	first := &fakeSession{}
	second := &fakeSession{}
	h := newHarness(t, factoryOf(first, second), nil, nil)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Enqueue("one", "p1", 5, nil)
	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 1 }, waitFor, tick)
	firstRun := h.ctrl.Status()

	require.NoError(t, h.ctrl.Stop())
	h.ctrl.Wait()

	stopped := h.ctrl.Status()
	assert.Equal(t, StateStopped, stopped.State)
	assert.Nil(t, stopped.Session)

	// Tasks submitted while stopped wait for the next run.
	h.ctrl.Enqueue("", "queued while stopped", 5, nil)
	assert.Equal(t, 1, h.ctrl.Status().QueueSize)

	require.NoError(t, h.ctrl.Start(context.Background()))
	restarted := h.ctrl.Status()
	assert.NotEqual(t, firstRun.RunID, restarted.RunID)
	assert.False(t, restarted.Stats.StartedAt.Before(firstRun.Stats.StartedAt))

	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 1 }, waitFor, tick)
	assert.Equal(t, []string{"queued while stopped"}, second.sent())
	assert.Equal(t, []string{"p1"}, first.sent())
}

func TestController_SendFailureDiscardsTask(t *testing.T) {
	sess := &fakeSession{sendErr: errors.New("reply timed out")}
	h := newHarness(t, factoryOf(sess), nil, nil)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Enqueue("bad", "p", 5, nil)

	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksFailed == 1 }, waitFor, tick)
	st := h.ctrl.Status()
	assert.Equal(t, int64(0), st.Stats.TasksCompleted)
	assert.Equal(t, 0, st.QueueSize)
	assert.Empty(t, st.CurrentTask)
	assert.Equal(t, 0, h.sink.count())
	assert.Equal(t, StateRunning, st.State)
}

func TestController_SinkFailureStillCompletes(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), nil, nil)
	h.sink.err = errors.New("disk full")

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Enqueue("ok", "p", 5, nil)

	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 1 }, waitFor, tick)
	assert.Equal(t, 1, h.sink.count())
}

func TestController_RotatesConversation(t *testing.T) {
	sess := &fakeSession{threshold: 2}
	h := newHarness(t, factoryOf(sess), nil, nil)

	for i := 0; i < 5; i++ {
		h.queue.Enqueue("task", "p", 5, nil)
	}
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 5 }, waitFor, tick)
	st := h.ctrl.Status()
	assert.Equal(t, int64(2), st.Stats.ConversationsRotated)
	require.NotNil(t, st.Session)
	assert.Equal(t, 1, st.Session.MessageCount)
}

func TestController_RecoversFromPanic(t *testing.T) {
	sess := &fakeSession{panicOnce: true}
	h := newHarness(t, factoryOf(sess), nil, nil)

	h.queue.Enqueue("boom", "first", 1, nil)
	h.queue.Enqueue("fine", "second", 2, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Status().Stats.TasksCompleted == 1 }, waitFor, tick)
	assert.Equal(t, []string{"second"}, sess.sent())
	assert.Equal(t, StateRunning, h.ctrl.State())
	assert.Empty(t, h.ctrl.Status().CurrentTask)
}

func TestController_EnqueueDefaults(t *testing.T) {
	h := newHarness(t, factoryOf(&fakeSession{}), nil, nil)

	task := h.ctrl.Enqueue("", "check", taskqueue.PriorityManual, map[string]string{"by": "cli"})
	assert.Equal(t, DefaultManualTaskName, task.Name)
	assert.Equal(t, taskqueue.PriorityManual, task.Priority)
	assert.Equal(t, taskqueue.SourceManual, task.Source)

	pending := h.ctrl.Status().Pending
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)
}

func TestController_DailyReportOverSimulatedHours(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), []cron.EntryConfig{
		{Name: "daily_report", Cron: "0 * * * *", TZ: "UTC", Enabled: true},
	}, clock.Now)

	require.NoError(t, h.ctrl.Start(context.Background()))

	for minute := 1; minute <= 180; minute++ {
		at := t0.Add(time.Duration(minute) * time.Minute)
		clock.set(at)
		require.Eventually(t, func() bool {
			return !h.ctrl.Status().Stats.LastSchedulerTick.Before(at)
		}, waitFor, tick)
	}

	require.Eventually(t, func() bool { return len(sess.sent()) == 3 }, waitFor, tick)
	for _, p := range sess.sent() {
		assert.Equal(t, "prompt for daily_report", p)
	}

	snap := h.ctrl.Status().Schedules
	require.Len(t, snap, 1)
	assert.Equal(t, 3, snap[0].Fires)
	assert.Equal(t, t0.Add(4*time.Hour), snap[0].NextRun.UTC())
}

func TestController_ReloadSchedules(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	sess := &fakeSession{}
	h := newHarness(t, factoryOf(sess), []cron.EntryConfig{
		{Name: "hourly", Cron: "0 * * * *", Enabled: true},
	}, clock.Now)

	// A reload requested while stopped is applied on Start.
	h.ctrl.ReloadSchedules([]cron.EntryConfig{
		{Name: "hourly", Cron: "0 * * * *", Enabled: true},
		{Name: "quarterly", Cron: "*/15 * * * *", Enabled: true},
	})
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Len(t, h.ctrl.Status().Schedules, 2)

	h.ctrl.ReloadSchedules([]cron.EntryConfig{
		{Name: "quarterly", Cron: "*/15 * * * *", Enabled: true},
	})
	require.Eventually(t, func() bool {
		for _, e := range h.ctrl.Status().Schedules {
			if e.Name == "hourly" {
				return !e.Enabled
			}
		}
		return false
	}, waitFor, tick)

	clock.set(t0.Add(time.Hour))
	require.Eventually(t, func() bool { return len(sess.sent()) == 1 }, waitFor, tick)
	assert.Equal(t, "prompt for quarterly", sess.sent()[0])
}
