// Package summaryclient calls the summary API and implements the polling protocol.
package summaryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxAttempts at the default interval waits about five minutes.
	DefaultMaxAttempts = 150
)

// ErrPollTimeout is returned when a job is still running after the last attempt.
var ErrPollTimeout = errors.New("timed out waiting for summary")

// Client calls the summary service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a summary service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a client that authenticates with the given bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

type SubmitRequest struct {
	SourceReference string `json:"sourceReference"`
	Format          string `json:"format,omitempty"`
	Language        string `json:"language,omitempty"`
}

type SubmitResponse struct {
	JobID     string           `json:"jobId"`
	SummaryID string           `json:"summaryId"`
	Status    domain.JobStatus `json:"status"`
}

// Summary is a list entry.
type Summary struct {
	domain.SummaryJob
	Preview string `json:"preview"`
}

type listResponse struct {
	Items []Summary `json:"items"`
	Count int       `json:"count"`
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/summaries", req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, id string) (domain.StatusView, error) {
	var out domain.StatusView
	err := c.do(ctx, http.MethodGet, "/api/summaries/"+url.PathEscape(id)+"/status", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (domain.SummaryJob, error) {
	var out domain.SummaryJob
	err := c.do(ctx, http.MethodGet, "/api/summaries/"+url.PathEscape(id), nil, &out)
	return out, err
}

// List returns the caller's summaries newest first; recent limits it to the last five.
func (c *Client) List(ctx context.Context, recent bool) ([]Summary, error) {
	path := "/api/summaries"
	if recent {
		path += "/recent"
	}
	var out listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/summaries/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodGet, "/api/summaries/"+url.PathEscape(id)+"/download", nil, &out)
	return out.URL, err
}

func (c *Client) Credits(ctx context.Context) (domain.Credits, error) {
	var out domain.Credits
	err := c.do(ctx, http.MethodGet, "/api/credits", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
