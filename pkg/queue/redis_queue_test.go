package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *RedisJobQueue {
	t.Helper()
	q, _ := newTestQueueWithServer(t)
	return q
}

func newTestQueueWithServer(t *testing.T) (*RedisJobQueue, *miniredis.Miniredis) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:      redisSrv.Addr(),
		Stream:    "test:summaries",
		Group:     "test-group",
		Consumer:  "consumer",
		Block:     20 * time.Millisecond,
		ClaimIdle: time.Hour,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q, redisSrv
}

func TestRedisJobQueueEnqueueWritesTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if err := q.Enqueue(ctx, Task{JobID: "job-1", OwnerID: "user-a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "reader",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	task, ok := decodeTask(streams[0].Messages[0])
	if !ok || task.JobID != "job-1" || task.OwnerID != "user-a" {
		t.Fatalf("unexpected task: %+v ok=%v", task, ok)
	}
}

func TestRedisJobQueueRejectsEmptyJobID(t *testing.T) {
	q := newTestQueue(t)
	if err := q.Enqueue(context.Background(), Task{JobID: "  "}); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}

func TestRedisJobQueueHandlesOnceAndAcks(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 4)
	q.Start(ctx, 2, func(ctx context.Context, task Task) error {
		mu.Lock()
		seen[task.JobID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	for _, id := range []string{"job-1", "job-2"} {
		if err := q.Enqueue(context.Background(), Task{JobID: id, OwnerID: "u"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for handler")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err := q.client.XPending(context.Background(), q.stream, q.group).Result()
		if err != nil {
			t.Fatalf("xpending: %v", err)
		}
		if pending.Count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected all messages acked, %d pending", pending.Count)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen["job-1"] != 1 || seen["job-2"] != 1 {
		t.Fatalf("unexpected deliveries: %v", seen)
	}
}

func TestRedisJobQueueMalformedMessageIsDropped(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if err := q.ensureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: map[string]any{"other": "x"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "reader",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	called := false
	q.handleMessage(ctx, streams[0].Messages[0], func(context.Context, Task) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run for malformed message")
	}
	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 0 {
		t.Fatalf("expected malformed message deleted, len=%d", streamLen)
	}
}

func TestRedisJobQueueEnqueueRecoversAfterRedisRestart(t *testing.T) {
	q, redisSrv := newTestQueueWithServer(t)
	redisSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	err := q.Enqueue(ctx, Task{JobID: "job-1", OwnerID: "u"})
	cancel()
	if err == nil {
		t.Fatalf("expected enqueue to fail while redis is down")
	}

	if err := redisSrv.Restart(); err != nil {
		t.Fatalf("restart redis: %v", err)
	}
	if err := q.Ping(context.Background()); err != nil {
		t.Fatalf("ping after restart: %v", err)
	}
	if err := q.Enqueue(context.Background(), Task{JobID: "job-2", OwnerID: "u"}); err != nil {
		t.Fatalf("enqueue after redis recovered: %v", err)
	}
	n, err := q.client.XLen(context.Background(), q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("stream length = %d, want 1", n)
	}
}

func TestRedisJobQueueRecreatesDroppedGroup(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 2)
	q.Start(ctx, 1, func(ctx context.Context, task Task) error {
		handled <- task.JobID
		return nil
	})
	if err := q.Enqueue(context.Background(), Task{JobID: "job-1", OwnerID: "u"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for first task")
	}

	if err := q.client.Del(context.Background(), q.stream).Err(); err != nil {
		t.Fatalf("del stream: %v", err)
	}
	q.resetGroup()
	if err := q.Enqueue(context.Background(), Task{JobID: "job-2", OwnerID: "u"}); err != nil {
		t.Fatalf("enqueue after stream loss: %v", err)
	}
	select {
	case id := <-handled:
		if id != "job-2" {
			t.Fatalf("handled %q, want job-2", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("consumer did not recover after the group was dropped")
	}
}

func TestRedisJobQueueDoneAfterCancel(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, 3, func(context.Context, Task) error { return nil })
	cancel()
	select {
	case <-q.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("consumers did not stop after cancel")
	}
}

func TestRedisJobQueueLeavesUnstartedTaskPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if err := q.Enqueue(ctx, Task{JobID: "job-1", OwnerID: "u"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "reader",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}

	stopped, cancel := context.WithCancel(ctx)
	cancel()
	q.handleMessage(stopped, streams[0].Messages[0], func(ctx context.Context, task Task) error {
		return ctx.Err()
	})
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("pending = %d, want the unstarted task kept for redelivery", pending.Count)
	}

	q.handleMessage(stopped, streams[0].Messages[0], func(context.Context, Task) error {
		return nil
	})
	pending, err = q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("finished task must be acked after shutdown, %d pending", pending.Count)
	}
}
