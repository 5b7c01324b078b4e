package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/summaries":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1", "summaryId": "job-1", "status": "pending"})
		case r.URL.Path == "/api/summaries/job-1/status":
			status := "processing"
			if atomic.AddInt32(&polls, 1) > 1 {
				status = "completed"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"summaryId": "job-1", "status": status})
		case r.URL.Path == "/api/summaries/job-1":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "completed", "content": "The summary."})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"ytsum"}, args...))
	return out.String(), err
}

func TestSubmitWaitsForSummary(t *testing.T) {
	srv := fakeService(t)
	out, err := run(t, "--server", srv.URL, "--token", "tok", "submit", "--interval", "1ms", "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, "job job-1 pending") || !strings.Contains(out, "The summary.") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSubmitRequiresURL(t *testing.T) {
	srv := fakeService(t)
	if _, err := run(t, "--server", srv.URL, "--token", "tok", "submit"); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestStatusReportsAPIError(t *testing.T) {
	srv := fakeService(t)
	_, err := run(t, "--server", srv.URL, "--token", "bad", "status", "job-1")
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
