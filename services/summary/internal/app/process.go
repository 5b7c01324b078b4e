package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/ai"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/events"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/queue"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/storage"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/summarize"
)

func (a *App) handleTask(ctx context.Context, task queue.Task) error {
	return a.process(ctx, task.JobID)
}

// process runs one job to a terminal state. Redelivered tasks stop at the
// claim because the job is no longer pending. Once claimed, the job runs to
// completion even if ctx is cancelled, bounded by the processing timeout.
func (a *App) process(ctx context.Context, jobID string) error {
	logger := a.logger.With("job_id", jobID)
	if err := ctx.Err(); err != nil {
		logger.Info("summary_job_deferred", "reason", "shutting down")
		return err
	}
	claimed, err := a.store.ClaimJob(jobID)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		logger.Info("summary_job_skipped", "reason", "not pending")
		return nil
	}
	job, ok, err := a.store.GetJob(jobID)
	if err != nil {
		a.fail(ctx, domain.SummaryJob{ID: jobID}, fmt.Errorf("load job: %w", err))
		return err
	}
	if !ok {
		logger.Warn("summary_job_vanished", "stage", "load")
		return nil
	}

	plan := domain.PlanFree
	if credits, err := a.store.GetOrCreateCredits(job.OwnerID); err != nil {
		logger.Warn("summary_plan_lookup_failed", "owner_id", job.OwnerID, "err", err)
	} else {
		plan = credits.Plan
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.processingTimeout)
	defer cancel()
	logger.Info("summary_job_started", "owner_id", job.OwnerID)
	res, err := a.summarize(runCtx, SummaryRequest{Job: job, Plan: plan})
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = ErrEmptyContent
	}
	if err != nil {
		a.fail(ctx, job, err)
		return nil
	}
	a.complete(ctx, job, res)
	return nil
}

func (a *App) summarize(ctx context.Context, req SummaryRequest) (res SummaryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summarizer panic: %v", r)
		}
	}()
	return a.summarizer.Summarize(ctx, req)
}

func (a *App) complete(ctx context.Context, job domain.SummaryJob, res SummaryResult) {
	ctx = context.WithoutCancel(ctx)
	logger := a.logger.With("job_id", job.ID)
	ok, err := a.store.CompleteJob(job.ID, res.Text, res.Metadata)
	if err != nil {
		logger.Error("summary_job_complete_write_failed", "err", err)
		return
	}
	if !ok {
		logger.Warn("summary_job_vanished", "stage", "complete")
		return
	}
	logger.Info("summary_job_completed", "chars", len(res.Text))
	a.export(ctx, job, res.Text)
	a.publish(ctx, events.TypeSummaryCompleted, job, "")
}

func (a *App) fail(ctx context.Context, job domain.SummaryJob, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := a.logger.With("job_id", job.ID)
	var unrecognized *ai.UnrecognizedResponseError
	switch {
	case errors.As(cause, &unrecognized):
		logger.Warn("summary_response_unrecognized", "keys", unrecognized.Keys)
	case errors.Is(cause, ErrEmptyContent):
		logger.Warn("summary_response_empty")
	}
	msg := cause.Error()
	ok, err := a.store.FailJob(job.ID, msg)
	if err != nil {
		logger.Error("summary_job_fail_write_failed", "err", err, "cause", msg)
		return
	}
	if !ok {
		logger.Warn("summary_job_vanished", "stage", "fail", "cause", msg)
		return
	}
	logger.Warn("summary_job_failed", "err", msg)
	a.publish(ctx, events.TypeSummaryFailed, job, msg)
}

// export uploads the Markdown rendering. Failures leave the job completed.
func (a *App) export(ctx context.Context, job domain.SummaryJob, text string) {
	if a.objects == nil {
		return
	}
	logger := a.logger.With("job_id", job.ID)
	md, err := summarize.ToMarkdown(text)
	if err != nil {
		logger.Warn("summary_export_failed", "err", err)
		return
	}
	key := storage.ExportKey(job.OwnerID, job.ID)
	body := []byte(md)
	if err := a.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "text/markdown; charset=utf-8"); err != nil {
		logger.Warn("summary_export_failed", "key", key, "err", err)
		return
	}
	if err := a.store.SetExportKey(job.ID, key); err != nil {
		logger.Warn("summary_export_record_failed", "key", key, "err", err)
	}
}

func (a *App) publish(ctx context.Context, eventType string, job domain.SummaryJob, errMsg string) {
	event := events.SummaryEvent{
		Type:            eventType,
		SummaryID:       job.ID,
		OwnerID:         job.OwnerID,
		SourceReference: job.SourceReference,
		Error:           errMsg,
		OccurredAt:      a.now(),
	}
	if err := a.events.Publish(ctx, event); err != nil {
		a.logger.Warn("summary_event_publish_failed", "job_id", job.ID, "type", eventType, "err", err)
	}
}
