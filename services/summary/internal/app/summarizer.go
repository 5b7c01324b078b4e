package app

import (
	"context"
	"errors"
	"strconv"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/ai"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/youtube"
)

// SummaryRequest is everything a Summarizer may look at for one job.
type SummaryRequest struct {
	Job  domain.SummaryJob
	Plan domain.PlanID
}

// SummaryResult is the generated text plus details kept in the job metadata.
type SummaryResult struct {
	Text     string
	Title    string
	Metadata map[string]string
}

// Summarizer produces the summary for one job.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error)
}

type webhookCaller interface {
	Summarize(ctx context.Context, sourceReference string) (ai.WebhookResult, error)
}

// WebhookSummarizer forwards the raw source reference to the summarization webhook,
// which fetches and summarizes the video on its own.
type WebhookSummarizer struct {
	client webhookCaller
}

func NewWebhookSummarizer(client *ai.WebhookClient) *WebhookSummarizer {
	return &WebhookSummarizer{client: client}
}

func (s *WebhookSummarizer) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	res, err := s.client.Summarize(ctx, req.Job.SourceReference)
	if err != nil {
		return SummaryResult{}, err
	}
	return SummaryResult{
		Text: res.Text,
		Metadata: map[string]string{
			"source": "webhook",
			"field":  res.Field,
		},
	}, nil
}

// MetadataFetcher loads video details.
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoID string) (youtube.Metadata, error)
}

// TextSummarizer summarizes a description with a language model.
type TextSummarizer interface {
	Summarize(ctx context.Context, videoID string, format domain.Format, language domain.Language, description string) (string, error)
}

// ModelSummarizer fetches video metadata itself and summarizes the description.
type ModelSummarizer struct {
	fetcher MetadataFetcher
	text    TextSummarizer
}

func NewModelSummarizer(fetcher MetadataFetcher, text TextSummarizer) *ModelSummarizer {
	return &ModelSummarizer{fetcher: fetcher, text: text}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	if s.fetcher == nil || s.text == nil {
		return SummaryResult{}, errors.New("model summarizer not configured")
	}
	videoID := req.Job.VideoID
	if videoID == "" {
		id, ok := youtube.ExtractVideoID(req.Job.SourceReference)
		if !ok {
			return SummaryResult{}, invalid("invalid YouTube URL")
		}
		videoID = id
	}
	meta, err := s.fetcher.Fetch(ctx, videoID)
	if err != nil {
		return SummaryResult{}, err
	}
	if req.Plan == domain.PlanFree && meta.DurationSeconds > domain.FreeMaxDurationSeconds {
		return SummaryResult{}, ErrDurationLimit
	}
	text, err := s.text.Summarize(ctx, videoID, req.Job.Format, req.Job.Language, meta.Description)
	if err != nil {
		return SummaryResult{}, err
	}
	return SummaryResult{
		Text:  text,
		Title: meta.Title,
		Metadata: map[string]string{
			"source":   "model",
			"videoId":  videoID,
			"title":    meta.Title,
			"channel":  meta.ChannelTitle,
			"duration": strconv.Itoa(meta.DurationSeconds),
		},
	}, nil
}
