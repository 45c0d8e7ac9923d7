package taskqueue

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/warden/internal/observability"
)

// Priorities used by the built-in producers. Lower values run first.
const (
	PriorityScheduled = 3
	PriorityManual    = 5
)

// Source identifies who produced a task.
type Source string

const (
	SourceScheduled Source = "scheduled"
	SourceManual    Source = "manual"
)

// Task is one dispatchable prompt.
type Task struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Prompt    string            `json:"prompt"`
	Priority  int               `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    Source            `json:"source"`
	CreatedAt time.Time         `json:"created_at"`

	seq uint64
}

// Queue is a mutex-guarded min-heap of tasks.
type Queue struct {
	mu    sync.Mutex
	items taskHeap
	seq   uint64
	last  time.Time
	now   func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	observability.EnsureRegistered()

	q := &Queue{now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a manual task.
func (q *Queue) Enqueue(name, prompt string, priority int, metadata map[string]string) Task {
	return q.EnqueueFrom(SourceManual, name, prompt, priority, metadata)
}

// EnqueueFrom inserts a task tagged with its producer.
func (q *Queue) EnqueueFrom(source Source, name, prompt string, priority int, metadata map[string]string) Task {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	q.mu.Lock()
	q.seq++
	task := Task{
		ID:        uuid.New().String(),
		Name:      name,
		Prompt:    prompt,
		Priority:  priority,
		Metadata:  meta,
		Source:    source,
		CreatedAt: q.now(),
		seq:       q.seq,
	}
	// CreatedAt never runs backwards across insertions.
	if task.CreatedAt.Before(q.last) {
		task.CreatedAt = q.last
	}
	q.last = task.CreatedAt
	heap.Push(&q.items, task)
	size := len(q.items)
	q.mu.Unlock()

	observability.RecordEnqueue(string(source), size)
	return task
}

// Dequeue removes and returns the most urgent task. ok is false when empty.
func (q *Queue) Dequeue() (task Task, ok bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Task{}, false
	}
	task = heap.Pop(&q.items).(Task)
	size := len(q.items)
	q.mu.Unlock()

	observability.RecordDequeue(size)
	return task, true
}

// Requeue puts back a task obtained from Dequeue. It keeps its ID and its
// original place in the ordering.
func (q *Queue) Requeue(task Task) {
	q.mu.Lock()
	heap.Push(&q.items, task)
	size := len(q.items)
	q.mu.Unlock()

	observability.RecordEnqueue(string(task.Source), size)
}

// Size returns the number of pending tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all pending tasks and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	count := len(q.items)
	q.items = nil
	q.mu.Unlock()

	observability.RecordQueueCleared(count)
	return count
}

// Pending returns a copy of the pending tasks in dequeue order.
func (q *Queue) Pending() []Task {
	q.mu.Lock()
	tasks := make([]Task, len(q.items))
	copy(tasks, q.items)
	q.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		return less(tasks[i], tasks[j])
	})
	return tasks
}

func less(a, b Task) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

type taskHeap []Task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
