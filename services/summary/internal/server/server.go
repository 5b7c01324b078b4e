package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/internal/ratelimit"
	"github.com/muneeb-ashraf/yt-summarizer-app/internal/servicetoken"
	"github.com/muneeb-ashraf/yt-summarizer-app/internal/util"
	"github.com/muneeb-ashraf/yt-summarizer-app/services/summary/internal/app"
)

const (
	maxSubmitBytes  = 64 << 10
	maxBillingBytes = 1 << 20
	rateWindow      = time.Minute
)

// TokenVerifier resolves a bearer token to its subject.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier TokenVerifier
	// RedisAddr enables the per-owner submit limit. Empty disables it.
	RedisAddr                string
	RedisPassword            string
	SubmitRateLimitPerMinute int
	TrustedProxies           *util.TrustedProxies
	CORSAllowedOrigins       []string
}

// Server exposes the summary HTTP API.
type Server struct {
	app           *app.App
	tokenVerifier TokenVerifier
	submitLimiter *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies
	origins       []string
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, fmt.Errorf("token verifier required")
	}
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		trusted:       cfg.TrustedProxies,
		origins:       cfg.CORSAllowedOrigins,
		mux:           http.NewServeMux(),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limit := cfg.SubmitRateLimitPerMinute
		if limit <= 0 {
			limit = 10
		}
		limiter, err := ratelimit.New(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "ytsum:summary:ratelimit:submit",
			Limit:    limit,
			Window:   rateWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("init submit limiter: %w", err)
		}
		s.submitLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	h := util.WithCORS(s.origins)(s.mux)
	h = util.WithSecurityHeaders(s.trusted, h)
	h = util.WithRequestLog(s.trusted, h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/summaries", s.authenticated(s.handleSummaries))
	s.mux.Handle("/api/summaries/", s.authenticated(s.handleSummaryByID))
	s.mux.Handle("/api/credits", s.authenticated(s.handleCredits))
	s.mux.HandleFunc("/api/plans", s.handlePlans)

	// signed by the billing provider, no user token
	s.mux.HandleFunc("/api/webhooks/billing", s.handleBillingWebhook)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			s.audit(r, "summary.token.verify", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ownerID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil || strings.TrimSpace(ownerID) == "" {
			s.audit(r, "summary.token.verify", "fail", "reason", "invalid_signature_or_claims")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.audit(r, "summary.authorize", "success", "user_id", ownerID)
		next(w, r, ownerID)
	})
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		s.writeList(w, r, ownerID, 0)
	case http.MethodPost:
		s.handleSubmit(w, r, ownerID)
	default:
		methodNotAllowed(w)
	}
}

type submitRequest struct {
	SourceReference string `json:"sourceReference"`
	YoutubeURL      string `json:"youtubeUrl"`
	Format          string `json:"format"`
	Language        string `json:"language"`
}

type submitResponse struct {
	JobID     string `json:"jobId"`
	SummaryID string `json:"summaryId"`
	Status    string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.allowRate(w, r, ownerID) {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ref := req.SourceReference
	if strings.TrimSpace(ref) == "" {
		ref = req.YoutubeURL
	}
	job, err := s.app.Submit(r.Context(), ownerID, app.SubmitRequest{
		SourceReference: ref,
		Format:          req.Format,
		Language:        req.Language,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("summary_submitted", "job_id", job.ID, "owner_id", ownerID)
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, SummaryID: job.ID, Status: string(job.Status)})
}

func (s *Server) writeList(w http.ResponseWriter, r *http.Request, ownerID string, limit int) {
	items, err := s.app.ListJobs(r.Context(), ownerID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleSummaryByID(w http.ResponseWriter, r *http.Request, ownerID string) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/summaries/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if rest == "recent" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		items, err := s.app.ListRecent(r.Context(), ownerID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
		return
	}
	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			job, err := s.app.GetJob(r.Context(), ownerID, id)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		case http.MethodDelete:
			if err := s.app.Delete(r.Context(), ownerID, id); err != nil {
				writeAppError(w, r, err)
				return
			}
			util.LoggerFromContext(r.Context()).Info("summary_deleted", "job_id", id, "owner_id", ownerID)
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			methodNotAllowed(w)
		}
	case "status":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		view, err := s.app.GetStatus(r.Context(), ownerID, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case "download":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.DownloadURL(r.Context(), ownerID, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request, ownerID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	credits, err := s.app.GetCredits(r.Context(), ownerID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.app.Plans()})
}

func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBillingBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	handled, err := s.app.HandleBillingEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidSignature) {
			s.audit(r, "summary.billing.verify", "fail", "reason", "invalid_signature")
		}
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "summary.billing.verify", "success")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true, "handled": handled})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate limits submissions per owner. Limiter errors deny the request.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	if s.submitLimiter == nil {
		return true
	}
	decision, err := s.submitLimiter.Allow(r.Context(), ownerID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate_limit_unavailable", "err", err)
	}
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.audit(r, "summary.submit.ratelimit", "fail", "user_id", ownerID)
	writeError(w, http.StatusTooManyRequests, "too many summary requests, try again later")
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps app errors to status codes. Anything unknown is a 500
// with a generic message; the cause is only logged.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, app.ErrNotFound.Error())
	case errors.Is(err, app.ErrNotExported):
		writeError(w, http.StatusNotFound, app.ErrNotExported.Error())
	case errors.Is(err, app.ErrNoCredits):
		writeError(w, http.StatusPaymentRequired, app.ErrNoCredits.Error())
	case errors.Is(err, app.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, app.ErrInvalidSignature.Error())
	case errors.Is(err, app.ErrBillingDisabled):
		writeError(w, http.StatusServiceUnavailable, app.ErrBillingDisabled.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
