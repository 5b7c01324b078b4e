package app

import (
	"context"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/events"
)

const (
	timedOutMessage     = "processing timed out"
	undispatchedMessage = "job was never picked up"
)

func (a *App) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep fails jobs left in processing longer than the processing timeout,
// e.g. after a worker crashed between claim and terminal write. Jobs still
// pending after the same period lost their task (an in-process queue
// dropped at shutdown); they are failed and their credit refunded.
func (a *App) sweep(ctx context.Context) int {
	cutoff := a.now().Add(-a.processingTimeout)
	return a.sweepProcessing(ctx, cutoff) + a.sweepPending(ctx, cutoff)
}

func (a *App) sweepProcessing(ctx context.Context, cutoff time.Time) int {
	stuck, err := a.store.ListStuckJobs(domain.StatusProcessing, cutoff, sweepBatch)
	if err != nil {
		a.logger.Error("summary_sweep_failed", "err", err)
		return 0
	}
	failed := 0
	for _, job := range stuck {
		ok, err := a.store.FailJob(job.ID, timedOutMessage)
		if err != nil {
			a.logger.Error("summary_sweep_fail_write_failed", "job_id", job.ID, "err", err)
			continue
		}
		if !ok {
			continue
		}
		failed++
		a.logger.Warn("summary_job_timed_out", "job_id", job.ID, "updated_at", job.UpdatedAt)
		a.publish(ctx, events.TypeSummaryFailed, job, timedOutMessage)
	}
	return failed
}

func (a *App) sweepPending(ctx context.Context, cutoff time.Time) int {
	stale, err := a.store.ListStuckJobs(domain.StatusPending, cutoff, sweepBatch)
	if err != nil {
		a.logger.Error("summary_sweep_failed", "status", domain.StatusPending, "err", err)
		return 0
	}
	failed := 0
	for _, job := range stale {
		claimed, err := a.store.ClaimJob(job.ID)
		if err != nil {
			a.logger.Error("summary_sweep_fail_write_failed", "job_id", job.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		ok, err := a.store.FailJob(job.ID, undispatchedMessage)
		if err != nil || !ok {
			a.logger.Error("summary_sweep_fail_write_failed", "job_id", job.ID, "ok", ok, "err", err)
			continue
		}
		failed++
		a.refund(job.OwnerID)
		a.logger.Warn("summary_job_undispatched", "job_id", job.ID, "created_at", job.CreatedAt)
		a.publish(ctx, events.TypeSummaryFailed, job, undispatchedMessage)
	}
	return failed
}
