package session

import (
	"context"
	"time"
)

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultStableChecks = 3
	DefaultPollTimeout  = 90 * time.Second
)

// Sampler reads the current content of a streaming reply.
type Sampler func(ctx context.Context) (string, error)

// Poller waits for a streaming reply to stop changing.
type Poller struct {
	Interval     time.Duration
	StableChecks int
	Timeout      time.Duration

	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPoller returns a poller with the standard settle parameters.
func DefaultPoller() *Poller {
	return &Poller{
		Interval:     DefaultPollInterval,
		StableChecks: DefaultStableChecks,
		Timeout:      DefaultPollTimeout,
	}
}

// Poll samples until StableChecks consecutive samples equal the previous
// non-empty one. On timeout it returns the last sample with settled false.
func (p *Poller) Poll(ctx context.Context, sample Sampler) (content string, settled bool, err error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	checks := p.StableChecks
	if checks <= 0 {
		checks = DefaultStableChecks
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	maxPolls := int(timeout / interval)
	if maxPolls < checks+1 {
		maxPolls = checks + 1
	}

	var last, cur string
	stable := 0
	for i := 0; i < maxPolls; i++ {
		cur, err = sample(ctx)
		if err != nil {
			return last, false, err
		}

		if cur != "" && cur == last {
			stable++
		} else {
			stable = 0
			last = cur
		}

		if stable >= checks {
			return cur, true, nil
		}

		if err := sleep(ctx, interval); err != nil {
			return last, false, err
		}
	}

	return last, false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
