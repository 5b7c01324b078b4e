package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/internal/util"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/events"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/queue"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/storage"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/store"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/summarize"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/youtube"
)

const (
	recentLimit              = 5
	defaultProcessingTimeout = 15 * time.Minute
	defaultSweepInterval     = time.Minute
	defaultExportURLTTL      = 15 * time.Minute
	dispatchTimeout          = 3 * time.Second
	sweepBatch               = 100
)

// Config holds runtime configuration.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Dispatcher  queue.Dispatcher
	Summarizer  Summarizer
	// Objects is optional; without it summaries are not exported.
	Objects storage.ObjectStore
	// Events is optional; without it lifecycle events are dropped.
	Events events.Publisher

	QueueConcurrency     int
	ProcessingTimeout    time.Duration
	SweepInterval        time.Duration
	ExportURLTTL         time.Duration
	BillingWebhookSecret string
	Logger               *slog.Logger
}

// App runs summary jobs: intake, background processing and reads.
type App struct {
	store             store.Store
	dispatcher        queue.Dispatcher
	summarizer        Summarizer
	objects           storage.ObjectStore
	events            events.Publisher
	concurrency       int
	processingTimeout time.Duration
	sweepInterval     time.Duration
	exportURLTTL      time.Duration
	billingSecret     string
	logger            *slog.Logger
	now               func() time.Time
	sweeper           sync.WaitGroup
}

// SubmitRequest is a new summary request. Empty format and language use the defaults.
type SubmitRequest struct {
	SourceReference string
	Format          string
	Language        string
}

// SummaryItem is a list entry with a plain-text preview of the content.
type SummaryItem struct {
	domain.SummaryJob
	Preview string `json:"preview"`
}

// New constructs the summary service with persistence.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer required")
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		store:             dataStore,
		dispatcher:        cfg.Dispatcher,
		summarizer:        cfg.Summarizer,
		objects:           cfg.Objects,
		events:            publisher,
		concurrency:       cfg.QueueConcurrency,
		processingTimeout: cfg.ProcessingTimeout,
		sweepInterval:     cfg.SweepInterval,
		exportURLTTL:      cfg.ExportURLTTL,
		billingSecret:     strings.TrimSpace(cfg.BillingWebhookSecret),
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
	if app.concurrency <= 0 {
		app.concurrency = 4
	}
	if app.processingTimeout <= 0 {
		app.processingTimeout = defaultProcessingTimeout
	}
	if app.sweepInterval <= 0 {
		app.sweepInterval = defaultSweepInterval
	}
	if app.exportURLTTL <= 0 {
		app.exportURLTTL = defaultExportURLTTL
	}
	return app, nil
}

// Start launches the workers and the stuck-job sweeper. Both stop with ctx;
// jobs already claimed keep running until they reach a terminal state.
func (a *App) Start(ctx context.Context) {
	a.dispatcher.Start(ctx, a.concurrency, a.handleTask)
	a.sweeper.Add(1)
	go func() {
		defer a.sweeper.Done()
		a.runSweeper(ctx)
	}()
}

// drainer is implemented by dispatchers that can report when their
// consumers have stopped.
type drainer interface {
	Done() <-chan struct{}
}

// Wait blocks until the workers started by Start have finished after their
// ctx was cancelled, or until ctx expires.
func (a *App) Wait(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		a.sweeper.Wait()
		if d, ok := a.dispatcher.(drainer); ok {
			<-d.Done()
		}
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit validates the request, spends one credit, records a pending job and
// dispatches it. The job is returned before any processing happens.
func (a *App) Submit(ctx context.Context, ownerID string, req SubmitRequest) (domain.SummaryJob, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.SummaryJob{}, invalid("owner required")
	}
	ref := strings.TrimSpace(req.SourceReference)
	if ref == "" {
		return domain.SummaryJob{}, invalid("sourceReference required")
	}
	format, ok := domain.ParseFormat(req.Format)
	if !ok {
		return domain.SummaryJob{}, invalid("format must be one of paragraph, bullets, timestamped")
	}
	language, ok := domain.ParseLanguage(req.Language)
	if !ok {
		return domain.SummaryJob{}, invalid("language must be one of en, es, fr")
	}

	if _, err := a.store.GetOrCreateCredits(ownerID); err != nil {
		return domain.SummaryJob{}, fmt.Errorf("load credits: %w", err)
	}
	consumed, err := a.store.ConsumeCredit(ownerID)
	if err != nil {
		return domain.SummaryJob{}, fmt.Errorf("consume credit: %w", err)
	}
	if !consumed {
		return domain.SummaryJob{}, ErrNoCredits
	}

	now := a.now()
	job := domain.SummaryJob{
		ID:              util.NewID(),
		OwnerID:         ownerID,
		SourceReference: ref,
		Format:          format,
		Language:        language,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if videoID, ok := youtube.ExtractVideoID(ref); ok {
		job.VideoID = videoID
	}
	if err := a.store.CreateJob(job); err != nil {
		a.refund(ownerID)
		return domain.SummaryJob{}, fmt.Errorf("create job: %w", err)
	}

	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := a.dispatcher.Enqueue(dispatchCtx, queue.Task{JobID: job.ID, OwnerID: ownerID}); err != nil {
		a.logger.Error("summary_dispatch_failed", "job_id", job.ID, "err", err)
		return a.failUndispatched(ctx, job, err), nil
	}
	return job, nil
}

// failUndispatched records a dispatch error on a job nobody will pick up.
func (a *App) failUndispatched(ctx context.Context, job domain.SummaryJob, cause error) domain.SummaryJob {
	msg := fmt.Sprintf("dispatch failed: %v", cause)
	claimed, err := a.store.ClaimJob(job.ID)
	if err != nil || !claimed {
		a.logger.Error("summary_dispatch_fail_record_failed", "job_id", job.ID, "claimed", claimed, "err", err)
		return job
	}
	if ok, err := a.store.FailJob(job.ID, msg); err != nil || !ok {
		a.logger.Error("summary_dispatch_fail_record_failed", "job_id", job.ID, "err", err)
		return job
	}
	a.refund(job.OwnerID)
	job.Status = domain.StatusFailed
	job.ErrorMessage = msg
	a.publish(ctx, events.TypeSummaryFailed, job, msg)
	return job
}

func (a *App) refund(ownerID string) {
	if err := a.store.RefundCredit(ownerID); err != nil {
		a.logger.Error("credit_refund_failed", "owner_id", ownerID, "err", err)
	}
}

// GetJob returns a job owned by ownerID. Jobs of other owners are reported as not found.
func (a *App) GetJob(ctx context.Context, ownerID, id string) (domain.SummaryJob, error) {
	if strings.TrimSpace(id) == "" {
		return domain.SummaryJob{}, ErrNotFound
	}
	job, ok, err := a.store.GetJob(id)
	if err != nil {
		return domain.SummaryJob{}, fmt.Errorf("get job: %w", err)
	}
	if !ok || job.OwnerID != ownerID {
		return domain.SummaryJob{}, ErrNotFound
	}
	return job, nil
}

// GetStatus is what pollers call until the job is completed or failed.
func (a *App) GetStatus(ctx context.Context, ownerID, id string) (domain.StatusView, error) {
	job, err := a.GetJob(ctx, ownerID, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	return domain.NewStatusView(job), nil
}

// ListJobs returns the owner's jobs newest first. limit <= 0 means all.
func (a *App) ListJobs(ctx context.Context, ownerID string, limit int) ([]SummaryItem, error) {
	jobs, err := a.store.ListJobsByOwner(ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	items := make([]SummaryItem, 0, len(jobs))
	for _, job := range jobs {
		item := SummaryItem{SummaryJob: job}
		if job.Status == domain.StatusCompleted {
			item.Preview = summarize.Preview(job.Text, summarize.DefaultPreviewRunes)
		}
		items = append(items, item)
	}
	return items, nil
}

// ListRecent returns the owner's five newest jobs.
func (a *App) ListRecent(ctx context.Context, ownerID string) ([]SummaryItem, error) {
	return a.ListJobs(ctx, ownerID, recentLimit)
}

// Delete hard-deletes a job and its export. An in-flight job is not
// resurrected by its worker: the terminal write matches no row.
func (a *App) Delete(ctx context.Context, ownerID, id string) error {
	job, err := a.GetJob(ctx, ownerID, id)
	if err != nil {
		return err
	}
	deleted, err := a.store.DeleteJob(ownerID, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	if a.objects != nil && job.ExportKey != "" {
		if err := a.objects.Delete(ctx, job.ExportKey); err != nil {
			a.logger.Warn("summary_export_delete_failed", "job_id", id, "key", job.ExportKey, "err", err)
		}
	}
	return nil
}

// DownloadURL returns a short-lived link to the Markdown export of a completed job.
func (a *App) DownloadURL(ctx context.Context, ownerID, id string) (string, error) {
	job, err := a.GetJob(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if a.objects == nil || job.ExportKey == "" {
		return "", ErrNotExported
	}
	filename := storage.ExportFilename(job.Metadata["title"], job.ID)
	url, err := a.objects.PresignGet(ctx, job.ExportKey, filename, a.exportURLTTL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", ErrNotExported
		}
		return "", fmt.Errorf("presign export: %w", err)
	}
	return url, nil
}

// GetCredits returns the owner's plan and allowance, creating the free record on first use.
func (a *App) GetCredits(ctx context.Context, ownerID string) (domain.Credits, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Credits{}, invalid("owner required")
	}
	credits, err := a.store.GetOrCreateCredits(ownerID)
	if err != nil {
		return domain.Credits{}, fmt.Errorf("get credits: %w", err)
	}
	return credits, nil
}

// Plans returns the plan catalogue.
func (a *App) Plans() []domain.Plan {
	out := make([]domain.Plan, len(domain.Plans))
	copy(out, domain.Plans)
	return out
}
