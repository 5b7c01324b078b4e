package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	// ErrEmptyContent means the upstream answered without any usable text.
	ErrEmptyContent = errors.New("no content in summarization response")
	// ErrUnrecognizedResponse means a JSON body carried none of the known content fields.
	ErrUnrecognizedResponse = errors.New("unrecognized summarization response")
)

// DefaultContentFields is the lookup order for the generated text.
var DefaultContentFields = []string{"cleanedHtml", "summary", "text", "result", "content"}

const maxWebhookBody = 8 << 20

// WebhookError is a non-2xx answer from the summarization webhook.
type WebhookError struct {
	Status int
	Body   string
}

// maxErrorBodyRunes bounds how much of the response body is kept in the message.
const maxErrorBodyRunes = 200

func (e *WebhookError) Error() string {
	body := strings.TrimSpace(strings.ToValidUTF8(e.Body, "\uFFFD"))
	if runes := []rune(body); len(runes) > maxErrorBodyRunes {
		body = string(runes[:maxErrorBodyRunes])
	}
	if body == "" {
		return fmt.Sprintf("summarization webhook returned %d", e.Status)
	}
	return fmt.Sprintf("summarization webhook returned %d: %s", e.Status, body)
}

// UnrecognizedResponseError carries the top-level keys of a body that matched no content field.
type UnrecognizedResponseError struct {
	Keys []string
}

func (e *UnrecognizedResponseError) Error() string {
	return fmt.Sprintf("%s (keys: %s)", ErrUnrecognizedResponse.Error(), strings.Join(e.Keys, ","))
}

func (e *UnrecognizedResponseError) Unwrap() error { return ErrUnrecognizedResponse }

// TokenSigner issues bearer tokens for outbound calls.
type TokenSigner interface {
	Sign(audience string) (string, error)
}

// WebhookConfig configures WebhookClient.
type WebhookConfig struct {
	URL           string
	ContentFields []string
	Timeout       time.Duration
	Signer        TokenSigner
	Audience      string
	HTTPClient    *http.Client
}

// WebhookClient forwards a video reference to an all-in-one summarization webhook.
type WebhookClient struct {
	url        string
	fields     []string
	signer     TokenSigner
	audience   string
	httpClient *http.Client
}

// WebhookResult is the extracted text plus the field it came from ("raw" for non-JSON bodies).
type WebhookResult struct {
	Text  string
	Field string
}

// NewWebhookClient validates cfg and builds a client.
func NewWebhookClient(cfg WebhookConfig) (*WebhookClient, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("summarization webhook url required")
	}
	fields := make([]string, 0, len(cfg.ContentFields))
	for _, f := range cfg.ContentFields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		fields = append(fields, DefaultContentFields...)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &WebhookClient{
		url:        url,
		fields:     fields,
		signer:     cfg.Signer,
		audience:   strings.TrimSpace(cfg.Audience),
		httpClient: httpClient,
	}, nil
}

// Summarize posts {"youtubeUrl": ref} and extracts the generated text.
func (c *WebhookClient) Summarize(ctx context.Context, sourceReference string) (WebhookResult, error) {
	payload, err := json.Marshal(map[string]string{"youtubeUrl": sourceReference})
	if err != nil {
		return WebhookResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return WebhookResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		token, err := c.signer.Sign(c.audience)
		if err != nil {
			return WebhookResult{}, fmt.Errorf("sign webhook request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("summarization webhook request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
	if err != nil {
		return WebhookResult{}, fmt.Errorf("read summarization webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return WebhookResult{}, &WebhookError{Status: resp.StatusCode, Body: string(body)}
	}
	return ExtractContent(body, c.fields)
}

// ExtractContent pulls the generated text out of a webhook body.
// A JSON object (or the first object of a JSON array) is searched in field order;
// the first non-empty string wins. Bodies that are not JSON are used verbatim.
func ExtractContent(body []byte, fields []string) (WebhookResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return WebhookResult{}, ErrEmptyContent
	}
	if len(fields) == 0 {
		fields = DefaultContentFields
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return WebhookResult{Text: string(trimmed), Field: "raw"}, nil
	}
	if arr, ok := decoded.([]any); ok {
		if len(arr) == 0 {
			return WebhookResult{}, ErrEmptyContent
		}
		decoded = arr[0]
	}
	switch v := decoded.(type) {
	case map[string]any:
		for _, field := range fields {
			if s, ok := v[field].(string); ok && strings.TrimSpace(s) != "" {
				return WebhookResult{Text: s, Field: field}, nil
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return WebhookResult{}, &UnrecognizedResponseError{Keys: keys}
	case string:
		if strings.TrimSpace(v) == "" {
			return WebhookResult{}, ErrEmptyContent
		}
		return WebhookResult{Text: v, Field: "raw"}, nil
	default:
		return WebhookResult{}, &UnrecognizedResponseError{}
	}
}
