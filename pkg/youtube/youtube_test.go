package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]int{
		"PT1H2M3S": 3723,
		"PT45S":    45,
		"PT15M":    900,
		"PT2H":     7200,
		"garbage":  0,
		"":         0,
	}
	for in, want := range cases {
		if got := ParseDuration(in); got != want {
			t.Fatalf("ParseDuration(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", true},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://vimeo.com/12345", "", false},
		{"https://www.youtube.com/watch?v=short", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractVideoID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ExtractVideoID(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFetchUsesDataAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("id") != "abc123def45" || q.Get("key") != "k" || q.Get("part") != "snippet,contentDetails" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[{"snippet":{"title":"T","description":"D","channelTitle":"C"},"contentDetails":{"duration":"PT1H2M3S"}}]}`))
	}))
	defer srv.Close()

	f := NewFetcher(Config{APIKey: "k", APIBase: srv.URL, RequestsPerSecond: 100})
	meta, err := f.Fetch(context.Background(), "abc123def45")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := Metadata{Title: "T", DurationSeconds: 3723, ChannelTitle: "C", Description: "D"}
	if meta != want {
		t.Fatalf("meta = %+v, want %+v", meta, want)
	}
}

func TestFetchFallsBackToWatchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos":
			w.WriteHeader(http.StatusForbidden)
		case "/watch":
			_, _ = w.Write([]byte(`<html><head><title>Great Talk - YouTube</title></head><body></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(Config{APIKey: "k", APIBase: srv.URL, WatchBase: srv.URL})
	meta, err := f.Fetch(context.Background(), "abc123def45")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Title != "Great Talk" || meta.DurationSeconds != 0 || meta.ChannelTitle != "Unknown Channel" || meta.Description != "Video description unavailable" {
		t.Fatalf("unexpected fallback metadata: %+v", meta)
	}
}

func TestFetchFallbackDefaultTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(Config{WatchBase: srv.URL})
	meta, err := f.Fetch(context.Background(), "abc123def45")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Title != "Video abc123def45" {
		t.Fatalf("title = %q", meta.Title)
	}
}

func TestFetchBothPathsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(Config{APIKey: "k", APIBase: srv.URL, WatchBase: srv.URL})
	_, err := f.Fetch(context.Background(), "abc123def45")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.HasPrefix(err.Error(), "failed to fetch video metadata:") {
		t.Fatalf("unexpected error text: %v", err)
	}
	if !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected wrapped ErrVideoNotFound, got %v", err)
	}
}
