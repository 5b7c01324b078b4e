package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// APIError is a non-2xx answer from a model provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error: %d %s", e.Provider, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

// IsRetryableStatus reports whether a provider status is worth another attempt.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// RetryGenerator retries transient provider failures (429 and 5xx) with
// exponential backoff. Other errors are returned at once.
type RetryGenerator struct {
	next      TextGenerator
	attempts  int
	baseDelay time.Duration
}

// WithRetry wraps next. attempts <= 1 returns next unchanged.
func WithRetry(next TextGenerator, attempts int, baseDelay time.Duration) TextGenerator {
	if attempts <= 1 {
		return next
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &RetryGenerator{next: next, attempts: attempts, baseDelay: baseDelay}
}

func (g *RetryGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	delay := g.baseDelay
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		text, err := g.next.GenerateText(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !IsRetryableStatus(apiErr.Status) || attempt == g.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", lastErr
}
