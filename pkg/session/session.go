package session

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotOpen is returned when a session is used before Open or after Close.
var ErrNotOpen = errors.New("session not open")

const (
	KindBrowser = "browser"
	KindAPI     = "api"

	DefaultRotateAfterTokens = 8000
	tokensPerMessage         = 500
	minRotationThreshold     = 8
)

// Session is a stateful conversation with an external producer.
type Session interface {
	Open(ctx context.Context) error
	Close() error
	SendAndAwait(ctx context.Context, prompt string) (string, error)
	ShouldRotate() bool
	Rotate(ctx context.Context) error
	State() State
	Kind() string
}

// State is a point-in-time view of a session's counters.
type State struct {
	Kind              string `json:"kind"`
	MessageCount      int    `json:"message_count"`
	RotationThreshold int    `json:"rotation_threshold"`
	Open              bool   `json:"open"`
}

// RotationThreshold converts a token budget into a message count.
func RotationThreshold(rotateAfterTokens int) int {
	if rotateAfterTokens <= 0 {
		rotateAfterTokens = DefaultRotateAfterTokens
	}
	n := rotateAfterTokens / tokensPerMessage
	if n < minRotationThreshold {
		return minRotationThreshold
	}
	return n
}

// counters holds the fields status readers may touch concurrently.
type counters struct {
	messages  atomic.Int64
	threshold int
	open      atomic.Bool
}

func newCounters(rotateAfterTokens int) *counters {
	return &counters{threshold: RotationThreshold(rotateAfterTokens)}
}

func (c *counters) shouldRotate() bool {
	return int(c.messages.Load()) >= c.threshold
}

func (c *counters) state(kind string) State {
	return State{
		Kind:              kind,
		MessageCount:      int(c.messages.Load()),
		RotationThreshold: c.threshold,
		Open:              c.open.Load(),
	}
}
