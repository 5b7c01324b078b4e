package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/queue"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/store"
	"github.com/muneeb-ashraf/yt-summarizer-app/services/summary/internal/app"
)

const billingSecret = "whsec_server_test"

type staticVerifier map[string]string

func (v staticVerifier) VerifySubject(token string) (string, error) {
	if sub, ok := v[token]; ok {
		return sub, nil
	}
	return "", errors.New("invalid token")
}

type textSummarizer string

func (s textSummarizer) Summarize(ctx context.Context, req app.SummaryRequest) (app.SummaryResult, error) {
	return app.SummaryResult{Text: string(s)}, nil
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	q := queue.NewLocalQueue(16, nil)
	a, err := app.New(app.Config{
		Store:                store.NewMemoryStore(),
		Dispatcher:           q,
		Summarizer:           textSummarizer("<p>A short summary of the video.</p>"),
		BillingWebhookSecret: billingSecret,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})
	cfg.App = a
	if cfg.TokenVerifier == nil {
		cfg.TokenVerifier = staticVerifier{"token-a": "user-a", "token-b": "user-b"}
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func submitJob(t *testing.T, baseURL, token string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, baseURL+"/api/summaries", token, map[string]string{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d body=%v", resp.StatusCode, body)
	}
	id, _ := body["jobId"].(string)
	if id == "" || body["summaryId"] != id || body["status"] != "pending" {
		t.Fatalf("unexpected submit body: %v", body)
	}
	return id
}

func waitTerminal(t *testing.T, baseURL, token, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body := do(t, http.MethodGet, baseURL+"/api/summaries/"+id+"/status", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status code = %d", resp.StatusCode)
		}
		if s := body["status"]; s == "completed" || s == "failed" {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s not finished: %v", id, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSummariesRequireBearerToken(t *testing.T) {
	ts := newTestServer(t, Config{})
	for _, token := range []string{"", "wrong"} {
		resp, body := do(t, http.MethodGet, ts.URL+"/api/summaries", token, nil)
		if resp.StatusCode != http.StatusUnauthorized || body["error"] != "unauthorized" {
			t.Fatalf("token %q: status=%d body=%v", token, resp.StatusCode, body)
		}
	}
}

func TestSubmitPollAndRead(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := submitJob(t, ts.URL, "token-a")

	view := waitTerminal(t, ts.URL, "token-a", id)
	if view["status"] != "completed" || view["completedAt"] != view["createdAt"] {
		t.Fatalf("unexpected status view: %v", view)
	}
	if _, ok := view["error"]; ok {
		t.Fatalf("completed view carries error: %v", view)
	}

	resp, job := do(t, http.MethodGet, ts.URL+"/api/summaries/"+id, "token-a", nil)
	if resp.StatusCode != http.StatusOK || job["content"] != "<p>A short summary of the video.</p>" {
		t.Fatalf("get job: %d %v", resp.StatusCode, job)
	}

	resp, list := do(t, http.MethodGet, ts.URL+"/api/summaries/recent", "token-a", nil)
	if resp.StatusCode != http.StatusOK || list["count"] != float64(1) {
		t.Fatalf("recent: %d %v", resp.StatusCode, list)
	}
	items := list["items"].([]any)
	if preview := items[0].(map[string]any)["preview"]; preview != "A short summary of the video." {
		t.Fatalf("preview = %v", preview)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/summaries/"+id+"/download", "token-a", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("download without object storage: %d %v", resp.StatusCode, body)
	}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	ts := newTestServer(t, Config{})
	cases := []struct {
		name string
		body any
	}{
		{"invalid json", "{"},
		{"missing reference", map[string]string{}},
		{"blank reference", map[string]string{"sourceReference": "   "}},
		{"bad format", map[string]string{"sourceReference": "https://youtu.be/dQw4w9WgXcQ", "format": "poem"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/api/summaries", "token-a", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d body=%v", resp.StatusCode, body)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("missing error message: %v", body)
			}
		})
	}
	_, list := do(t, http.MethodGet, ts.URL+"/api/summaries", "token-a", nil)
	if list["count"] != float64(0) {
		t.Fatalf("rejected submissions created jobs: %v", list)
	}
}

func TestOtherOwnersJobIsNotFound(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := submitJob(t, ts.URL, "token-a")
	for _, path := range []string{"", "/status", "/download"} {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/summaries/"+id+path, "token-b", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s as other owner = %d", path, resp.StatusCode)
		}
	}
	resp, _ := do(t, http.MethodDelete, ts.URL+"/api/summaries/"+id, "token-b", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DELETE as other owner = %d", resp.StatusCode)
	}
}

func TestDeleteSummary(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := submitJob(t, ts.URL, "token-a")
	waitTerminal(t, ts.URL, "token-a", id)
	resp, body := do(t, http.MethodDelete, ts.URL+"/api/summaries/"+id, "token-a", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "deleted" {
		t.Fatalf("delete: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/summaries/"+id+"/status", "token-a", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d", resp.StatusCode)
	}
}

func TestSubmitWithoutCreditsIsPaymentRequired(t *testing.T) {
	ts := newTestServer(t, Config{})
	for i := 0; i < domain.PlanLimit(domain.PlanFree); i++ {
		submitJob(t, ts.URL, "token-a")
	}
	resp, body := do(t, http.MethodPost, ts.URL+"/api/summaries", "token-a", map[string]string{"sourceReference": "https://youtu.be/dQw4w9WgXcQ"})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	_, credits := do(t, http.MethodGet, ts.URL+"/api/credits", "token-a", nil)
	if credits["summariesLeft"] != float64(0) || credits["plan"] != "free" {
		t.Fatalf("unexpected credits: %v", credits)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	ts := newTestServer(t, Config{RedisAddr: redis.Addr(), SubmitRateLimitPerMinute: 1})
	submitJob(t, ts.URL, "token-a")
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/summaries", "token-a", map[string]string{"sourceReference": "https://youtu.be/dQw4w9WgXcQ"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second submit = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	// limits are per owner
	submitJob(t, ts.URL, "token-b")
}

func TestSubmitRateLimitFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	ts := newTestServer(t, Config{RedisAddr: redis.Addr(), SubmitRateLimitPerMinute: 5})
	redis.Close()
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/summaries", "token-a", map[string]string{"sourceReference": "https://youtu.be/dQw4w9WgXcQ"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("submit with redis down = %d, want 429", resp.StatusCode)
	}
}

func signBilling(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(billingSecret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestBillingWebhook(t *testing.T) {
	ts := newTestServer(t, Config{})
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1","subscription":"sub_1","metadata":{"userId":"user-a","plan":"pro"}}}}`)

	post := func(header string, body []byte) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/webhooks/billing", bytes.NewReader(body))
		if header != "" {
			req.Header.Set("Stripe-Signature", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post webhook: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := post("t=1,v1=deadbeef", payload); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad signature = %d, want 400", resp.StatusCode)
	}
	if resp := post(signBilling(payload, time.Now()), payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("signed webhook = %d, want 200", resp.StatusCode)
	}
	_, credits := do(t, http.MethodGet, ts.URL+"/api/credits", "token-a", nil)
	if credits["plan"] != "pro" || credits["summariesLeft"] != float64(20) {
		t.Fatalf("unexpected credits: %v", credits)
	}

	unknown := []byte(`{"type":"invoice.paid","data":{"object":{}}}`)
	if resp := post(signBilling(unknown, time.Now()), unknown); resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown event = %d, want 200", resp.StatusCode)
	}
	noUser := []byte(`{"type":"checkout.session.completed","data":{"object":{"metadata":{}}}}`)
	if resp := post(signBilling(noUser, time.Now()), noUser); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing user = %d, want 400", resp.StatusCode)
	}
}

func TestPlansArePublic(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, body := do(t, http.MethodGet, ts.URL+"/api/plans", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plans = %d", resp.StatusCode)
	}
	if items := body["items"].([]any); len(items) != 3 {
		t.Fatalf("plans = %v", items)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, _ := do(t, http.MethodPut, ts.URL+"/api/summaries", "token-a", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("PUT = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/plans", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST plans = %d", resp.StatusCode)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}
