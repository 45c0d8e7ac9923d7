package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns samples in order, repeating the last one.
func scripted(samples ...string) (Sampler, *int) {
	calls := 0
	return func(context.Context) (string, error) {
		i := calls
		calls++
		if i >= len(samples) {
			i = len(samples) - 1
		}
		return samples[i], nil
	}, &calls
}

func instantPoller() (*Poller, *int) {
	sleeps := 0
	return &Poller{
		Interval:     1500 * time.Millisecond,
		StableChecks: 3,
		Timeout:      90 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			return ctx.Err()
		},
	}, &sleeps
}

func TestRotationThreshold(t *testing.T) {
	assert.Equal(t, 16, RotationThreshold(8000))
	assert.Equal(t, 16, RotationThreshold(0))
	assert.Equal(t, 8, RotationThreshold(1000))
	assert.Equal(t, 8, RotationThreshold(4000))
	assert.Equal(t, 40, RotationThreshold(20000))
}

func TestPoller_ReturnsExactlyAtThreshold(t *testing.T) {
	p, sleeps := instantPoller()
	sample, calls := scripted("a", "ab", "abc", "abc", "abc", "abc", "never read")

	content, settled, err := p.Poll(context.Background(), sample)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, "abc", content)
	// abc first seen on call 3, then 3 identical samples.
	assert.Equal(t, 6, *calls)
	assert.Equal(t, 5, *sleeps)
}

func TestPoller_ChangeResetsRun(t *testing.T) {
	p, _ := instantPoller()
	sample, calls := scripted("x", "x", "x", "xy", "xy", "xy", "xy")

	content, settled, err := p.Poll(context.Background(), sample)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, "xy", content)
	assert.Equal(t, 7, *calls)
}

func TestPoller_EmptySamplesNeverSettle(t *testing.T) {
	p, _ := instantPoller()
	sample, calls := scripted("")

	content, settled, err := p.Poll(context.Background(), sample)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.Empty(t, content)
	assert.Equal(t, 60, *calls)
}

func TestPoller_TimeoutReturnsLastSample(t *testing.T) {
	p, _ := instantPoller()
	n := 0
	growing := func(context.Context) (string, error) {
		n++
		return string(make([]byte, n)), nil
	}

	content, settled, err := p.Poll(context.Background(), growing)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.Len(t, content, 60)
}

func TestPoller_SampleError(t *testing.T) {
	p, _ := instantPoller()
	boom := errors.New("detached")

	_, settled, err := p.Poll(context.Background(), func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, settled)
}

func TestPoller_ContextCancelled(t *testing.T) {
	p := &Poller{Interval: time.Hour, StableChecks: 3, Timeout: 10 * time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sample, _ := scripted("a")
	_, settled, err := p.Poll(ctx, sample)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, settled)
}

func TestPoller_Defaults(t *testing.T) {
	p := &Poller{Sleep: func(ctx context.Context, d time.Duration) error {
		assert.Equal(t, DefaultPollInterval, d)
		return nil
	}}
	sample, calls := scripted("done")

	_, settled, err := p.Poll(context.Background(), sample)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, DefaultStableChecks+1, *calls)
}
