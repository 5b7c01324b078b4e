package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAICompatGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var req oaiChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" summary "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1", "key", "gpt-4o-mini", 0.7)
	text, err := gen.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "summary" {
		t.Fatalf("text = %q", text)
	}
}

func TestOpenAICompatGeneratorAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL, "", "m", 0)
	_, err := gen.GenerateText(context.Background(), "", "user")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gk" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("gk", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := NewGeminiGenerator(client, "").GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("text = %q", text)
	}
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Errorf("stream must be disabled")
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	text, err := NewOllamaGenerator(srv.URL, "llama3", 0.2).GenerateText(context.Background(), "", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text = %q", text)
	}
}

type flakyGenerator struct {
	calls  atomic.Int32
	status int
	failN  int32
}

func (f *flakyGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	n := f.calls.Add(1)
	if n <= f.failN {
		return "", &APIError{Provider: "test", Status: f.status}
	}
	return "done", nil
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	gen := &flakyGenerator{status: http.StatusServiceUnavailable, failN: 2}
	text, err := WithRetry(gen, 3, time.Millisecond).GenerateText(context.Background(), "", "u")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "done" || gen.calls.Load() != 3 {
		t.Fatalf("text=%q calls=%d", text, gen.calls.Load())
	}
}

func TestWithRetryStopsOnClientErrors(t *testing.T) {
	gen := &flakyGenerator{status: http.StatusBadRequest, failN: 5}
	_, err := WithRetry(gen, 3, time.Millisecond).GenerateText(context.Background(), "", "u")
	if err == nil {
		t.Fatalf("expected error")
	}
	if gen.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", gen.calls.Load())
	}
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{Provider: "bard", Model: "x"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := NewGenerator(GeneratorConfig{Provider: "gemini"}); err == nil {
		t.Fatalf("expected error for missing gemini key")
	}
}
