// Package queue hands summary jobs from the API to the workers.
package queue

import "context"

// Task identifies one summary job to process.
type Task struct {
	JobID   string
	OwnerID string
}

// Handler processes one task. Errors are logged by the caller; tasks are
// never retried because the job row already records the outcome.
type Handler func(ctx context.Context, task Task) error

// Dispatcher enqueues tasks and runs a bounded set of consumers.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
	Start(ctx context.Context, concurrency int, handler Handler)
}
