package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when the in-process buffer is saturated.
var ErrQueueFull = errors.New("dispatch queue full")

// LocalQueue dispatches tasks in-process with at most concurrency handlers running.
// Used when Redis is not configured.
type LocalQueue struct {
	tasks  chan Task
	logger *slog.Logger
	done   chan struct{}
}

func NewLocalQueue(buffer int, logger *slog.Logger) *LocalQueue {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalQueue{
		tasks:  make(chan Task, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Enqueue never blocks.
func (q *LocalQueue) Enqueue(ctx context.Context, task Task) error {
	if strings.TrimSpace(task.JobID) == "" {
		return errors.New("job id required")
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start consumes until ctx is done, then waits for running handlers.
// Tasks still buffered at that point are dropped; their jobs stay pending.
func (q *LocalQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	go func() {
		defer close(q.done)
		g := &errgroup.Group{}
		g.SetLimit(concurrency)
		for {
			select {
			case <-ctx.Done():
				_ = g.Wait()
				q.logger.Info("queue_stopped", "dropped", len(q.tasks))
				return
			case task := <-q.tasks:
				if ctx.Err() != nil {
					q.logger.Info("queue_task_dropped", "job_id", task.JobID)
					continue
				}
				// g.Go blocks while all slots are busy; ctx may end meanwhile.
				g.Go(func() error {
					if ctx.Err() != nil {
						q.logger.Info("queue_task_dropped", "job_id", task.JobID)
						return nil
					}
					if err := handler(ctx, task); err != nil {
						q.logger.Warn("queue_handler_failed", "job_id", task.JobID, "err", err)
					}
					return nil
				})
			}
		}
	}()
}

// Done is closed once Start has returned and all handlers finished.
func (q *LocalQueue) Done() <-chan struct{} {
	return q.done
}
