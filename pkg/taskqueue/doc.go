// Package taskqueue provides the priority queue of pending agent tasks.
//
// Invariants:
// - Dequeue returns the task with the lowest (priority, createdAt, seq) key.
// - Tasks with equal priority are served in enqueue order.
// - Dequeue on an empty queue returns false; it never blocks.
//
// Usage:
//
//	q := taskqueue.New()
//	q.Enqueue("daily_report", prompt, taskqueue.PriorityScheduled, nil)
//	if task, ok := q.Dequeue(); ok {
//		_ = task.Prompt
//	}
package taskqueue
