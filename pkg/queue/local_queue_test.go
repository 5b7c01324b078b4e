package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalQueueBoundsConcurrency(t *testing.T) {
	q := NewLocalQueue(16, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var running, peak, total atomic.Int32
	release := make(chan struct{})
	q.Start(ctx, 2, func(ctx context.Context, task Task) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		total.Add(1)
		return nil
	})
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, Task{JobID: "job", OwnerID: "u"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for total.Load() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("handled %d of 5 tasks", total.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-q.Done()
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestLocalQueueFullDoesNotBlock(t *testing.T) {
	q := NewLocalQueue(1, nil)
	if err := q.Enqueue(context.Background(), Task{JobID: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), Task{JobID: "b"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestLocalQueueStopsDequeuingAfterCancel(t *testing.T) {
	q := NewLocalQueue(8, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan string, 4)
	release := make(chan struct{})
	var handled atomic.Int32
	q.Start(ctx, 1, func(ctx context.Context, task Task) error {
		started <- task.JobID
		<-release
		handled.Add(1)
		return nil
	})
	for _, id := range []string{"running", "queued-1", "queued-2"} {
		if err := q.Enqueue(context.Background(), Task{JobID: id, OwnerID: "u"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	select {
	case id := <-started:
		if id != "running" {
			t.Fatalf("first task = %q, want running", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first task never started")
	}

	cancel()
	close(release)
	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("queue did not stop")
	}
	if n := handled.Load(); n != 1 {
		t.Fatalf("handled %d tasks after cancel, want only the running one", n)
	}
}
