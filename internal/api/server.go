// Package api exposes the HTTP trigger and observability surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pineapple-index/subindex/internal/mentions"
	"github.com/pineapple-index/subindex/internal/queue"
	"github.com/pineapple-index/subindex/internal/ratelimit"
	"github.com/pineapple-index/subindex/internal/store"
)

// validEntity matches community names and u_-prefixed user entities.
var validEntity = regexp.MustCompile(`^[A-Za-z0-9_-]{3,23}$`)

// Server wires HTTP handlers to the refresh queue and the rate budget.
type Server struct {
	router    chi.Router
	queue     queue.Queue
	budget    ratelimit.Budget
	analytics store.AnalyticsStore
	logger    *zap.Logger
	// trigger throttles the refresh endpoint so a caller cannot flood the
	// work queue faster than the workers could ever drain it.
	trigger *rate.Limiter
}

// NewServer constructs a Server with middleware and routes.
func NewServer(q queue.Queue, budget ratelimit.Budget, analytics store.AnalyticsStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queue:     q,
		budget:    budget,
		analytics: analytics,
		logger:    logger,
		trigger:   rate.NewLimiter(rate.Every(time.Second), 10),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ratelimit", s.rateLimitStats)
	r.Get("/analytics", s.getAnalytics)
	r.With(s.throttleTrigger).Post("/subreddits/{name}/refresh", s.triggerRefresh)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) throttleTrigger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.trigger.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "too many refresh requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerRefresh enqueues one entity for the refresh worker and returns
// immediately. The worker dedups nothing; repeated triggers are harmless
// because the refresh itself is idempotent.
func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	name := mentions.Normalize(chi.URLParam(r, "name"))
	if !validEntity.MatchString(name) {
		s.writeError(w, http.StatusBadRequest, "invalid entity name")
		return
	}
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "refresh queue not configured")
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.queue.Push(queueCtx, name); err != nil {
		s.logger.Error("enqueue refresh failed", zap.String("entity", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"entity": name, "status": "queued"})
}

func (s *Server) rateLimitStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.budget.Stats(r.Context())
	if err != nil {
		s.logger.Error("rate limit stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.analytics.GetAnalytics(r.Context())
	if err != nil {
		s.logger.Error("load analytics failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "analytics unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_subreddits":       a.TotalSubreddits,
		"total_posts":            a.TotalPosts,
		"total_comments":         a.TotalComments,
		"total_mentions":         a.TotalMentions,
		"last_scan_started":      a.LastScanStarted,
		"last_scan_duration_s":   a.LastScanDuration,
		"last_scan_new_mentions": a.LastScanNewMentions,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
