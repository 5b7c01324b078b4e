package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase   = "https://www.googleapis.com/youtube/v3"
	defaultWatchBase = "https://www.youtube.com"

	unknownChannel         = "Unknown Channel"
	descriptionUnavailable = "Video description unavailable"
)

// ErrVideoNotFound is returned when the Data API knows no such video.
var ErrVideoNotFound = errors.New("video not found")

// Metadata is what the summarizer needs to know about a video.
type Metadata struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"durationSeconds"`
	ChannelTitle    string `json:"channelTitle"`
	Description     string `json:"description"`
}

// APIError is a non-2xx answer from the Data API.
type APIError struct {
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api error: %d", e.Status)
}

// Config configures Fetcher.
type Config struct {
	APIKey    string
	APIBase   string
	WatchBase string
	// RequestsPerSecond caps Data API calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Fetcher looks up video metadata, falling back to the public watch page.
type Fetcher struct {
	apiKey     string
	apiBase    string
	watchBase  string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

func NewFetcher(cfg Config) *Fetcher {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	watchBase := strings.TrimRight(strings.TrimSpace(cfg.WatchBase), "/")
	if watchBase == "" {
		watchBase = defaultWatchBase
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiBase:    apiBase,
		watchBase:  watchBase,
		httpClient: httpClient,
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Fetch returns metadata from the Data API, or placeholder metadata built
// from the watch page title when the API is unavailable.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (Metadata, error) {
	meta, err := f.fetchAPI(ctx, videoID)
	if err == nil {
		return meta, nil
	}
	f.logger.Warn("youtube_api_fallback", "video_id", videoID, "err", err)
	meta, fallbackErr := f.fetchWatchPage(ctx, videoID)
	if fallbackErr != nil {
		return Metadata{}, fmt.Errorf("failed to fetch video metadata: %w", errors.Join(err, fallbackErr))
	}
	return meta, nil
}

func (f *Fetcher) fetchAPI(ctx context.Context, videoID string) (Metadata, error) {
	if f.apiKey == "" {
		return Metadata{}, errors.New("youtube api key not configured")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Metadata{}, fmt.Errorf("youtube rate limit: %w", err)
		}
	}
	q := url.Values{}
	q.Set("id", videoID)
	q.Set("part", "snippet,contentDetails")
	q.Set("key", f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiBase+"/videos?"+q.Encode(), nil)
	if err != nil {
		return Metadata{}, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("youtube api request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, &APIError{Status: resp.StatusCode}
	}
	var payload videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Metadata{}, fmt.Errorf("decode youtube api response: %w", err)
	}
	if len(payload.Items) == 0 {
		return Metadata{}, ErrVideoNotFound
	}
	item := payload.Items[0]
	return Metadata{
		Title:           item.Snippet.Title,
		DurationSeconds: ParseDuration(item.ContentDetails.Duration),
		ChannelTitle:    item.Snippet.ChannelTitle,
		Description:     item.Snippet.Description,
	}, nil
}

func (f *Fetcher) fetchWatchPage(ctx context.Context, videoID string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.watchBase+"/watch?v="+url.QueryEscape(videoID), nil)
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("Accept-Language", "en")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("watch page request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("watch page status: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse watch page: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.TrimSpace(strings.TrimSuffix(title, "- YouTube"))
	if title == "" {
		title = "Video " + videoID
	}
	return Metadata{
		Title:           title,
		DurationSeconds: 0,
		ChannelTitle:    unknownChannel,
		Description:     descriptionUnavailable,
	}, nil
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}
