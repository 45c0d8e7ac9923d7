package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/warden/internal/tracing"
	"github.com/harun/warden/pkg/session"
)

// run is the state of one Start..Stop cycle. A restarted controller gets a
// new run, so a worker that is still exiting never sees the next one's state.
type run struct {
	id      string
	session session.Session

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
	wake   chan struct{}
	once   sync.Once

	paused atomic.Bool

	mu      sync.Mutex
	stats   Stats
	current string
}

func newRun(id string, sess session.Session, now time.Time) *run {
	ctx := tracing.WithRunID(tracing.WithTraceID(context.Background(), tracing.NewTraceID()), id)
	ctx, cancel := context.WithCancel(ctx)

	return &run{
		id:      id,
		session: sess,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stats:   Stats{StartedAt: now},
	}
}

// halt stops new dequeues. The run context stays live so an exchange that
// is already in flight can finish and be recorded.
func (r *run) halt() {
	r.once.Do(func() { close(r.stop) })
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *run) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d, a wake-up or stop. It reports false on stop.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.stopped()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-r.stop:
		return false
	case <-r.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (r *run) update(fn func(s *Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *run) setCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *run) currentTask() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *run) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
