package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/internal/util"
	"github.com/redis/go-redis/v9"
)

const ackTimeout = 5 * time.Second

// RedisJobQueue is a Redis Streams dispatcher with a consumer group.
// Messages idle longer than ClaimIdle are reclaimed by another consumer.
type RedisJobQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	logger       *slog.Logger

	groupMu    sync.Mutex
	groupReady bool

	workers sync.WaitGroup
	done    chan struct{}
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	DB         int
	Stream     string
	Group      string
	Consumer   string
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "summary-workers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 10 * time.Minute
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 1
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisJobQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

// Ping checks connectivity.
func (q *RedisJobQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, task Task) error {
	task.JobID = strings.TrimSpace(task.JobID)
	if task.JobID == "" {
		return errors.New("job id required")
	}
	if err := q.ensureGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":   task.JobID,
			"owner_id": task.OwnerID,
		},
	}).Err()
}

// Start runs concurrency consumers until ctx is done. Call it once.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		q.logger.Error("queue_group_create_failed", "stream", q.stream, "group", q.group, "err", err)
	}
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		q.workers.Add(1)
		go func() {
			defer q.workers.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	go func() {
		q.workers.Wait()
		close(q.done)
	}()
}

// Done is closed once every consumer started by Start has returned.
func (q *RedisJobQueue) Done() <-chan struct{} {
	return q.done
}

// ensureGroup creates the consumer group. Only success is remembered, so a
// Redis outage at startup does not poison later calls.
func (q *RedisJobQueue) ensureGroup(ctx context.Context) error {
	q.groupMu.Lock()
	defer q.groupMu.Unlock()
	if q.groupReady {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	q.groupReady = true
	return nil
}

// resetGroup forgets the group after Redis reported NOGROUP, e.g. when the
// stream was deleted or Redis restarted without persistence.
func (q *RedisJobQueue) resetGroup() {
	q.groupMu.Lock()
	q.groupReady = false
	q.groupMu.Unlock()
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := q.ensureGroup(ctx); err != nil {
			if ctx.Err() == nil {
				q.logger.Warn("queue_group_create_failed", "consumer", consumer, "err", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}

		msgs, err := q.claimPending(ctx, consumer)
		if isNoGroup(err) {
			q.resetGroup()
			continue
		}
		if err != nil && ctx.Err() == nil {
			q.logger.Warn("queue_claim_failed", "consumer", consumer, "err", err)
		}
		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if isNoGroup(err) {
			q.resetGroup()
			continue
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn("queue_read_failed", "consumer", consumer, "err", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// handleMessage runs the handler once and acknowledges regardless of outcome,
// unless the handler gave up on a cancelled ctx before doing any work.
func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	task, ok := decodeTask(msg)
	if !ok {
		q.logger.Warn("queue_malformed_message", "msg_id", msg.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err := handler(ctx, task)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Not started before shutdown; left pending for reclaim after restart.
		return
	}
	if err != nil {
		q.logger.Warn("queue_handler_failed", "job_id", task.JobID, "err", err)
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	q.ackAndDel(ackCtx, msg.ID)
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("queue_ack_failed", "msg_id", msgID, "err", err)
	}
}

func decodeTask(msg redis.XMessage) (Task, bool) {
	jobID, _ := msg.Values["job_id"].(string)
	ownerID, _ := msg.Values["owner_id"].(string)
	if strings.TrimSpace(jobID) == "" {
		return Task{}, false
	}
	return Task{JobID: jobID, OwnerID: ownerID}, true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
