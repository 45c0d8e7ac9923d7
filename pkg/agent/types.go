package agent

import (
	"errors"
	"time"

	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/session"
	"github.com/harun/warden/pkg/taskqueue"
)

var (
	ErrAlreadyRunning = errors.New("agent is already running")
	ErrNotRunning     = errors.New("agent is not running")
)

// State is the controller lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

var allStates = []string{string(StateStopped), string(StateRunning), string(StatePaused)}

// DefaultManualTaskName names manual tasks submitted without a name.
const DefaultManualTaskName = "manual_task"

// Loop timing defaults.
const (
	DefaultCheckInterval = 300 * time.Second
	DefaultPauseInterval = time.Second
	DefaultIdleCap       = 5 * time.Second
	DefaultErrorBackoff  = 10 * time.Second
)

// Stats are per-run counters, reset on every Start.
type Stats struct {
	TasksCompleted       int64     `json:"tasks_completed"`
	TasksFailed          int64     `json:"tasks_failed"`
	ConversationsRotated int64     `json:"conversations_rotated"`
	StartedAt            time.Time `json:"started_at"`
	LastActivity         time.Time `json:"last_activity,omitempty"`
	LastSchedulerTick    time.Time `json:"last_scheduler_tick,omitempty"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       State            `json:"state"`
	RunID       string           `json:"run_id,omitempty"`
	CurrentTask string           `json:"current_task,omitempty"`
	Stats       Stats            `json:"stats"`
	QueueSize   int              `json:"queue_size"`
	Pending     []taskqueue.Task `json:"pending,omitempty"`
	Session     *session.State   `json:"session,omitempty"`
	Schedules   []cron.Entry     `json:"schedules"`
	Skipped     []cron.Skipped   `json:"skipped,omitempty"`
}
