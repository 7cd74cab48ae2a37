package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pineapple-index/subindex/internal/api"
	"github.com/pineapple-index/subindex/internal/queue/memory"
	"github.com/pineapple-index/subindex/internal/ratelimit"
	"github.com/pineapple-index/subindex/internal/store"
)

type stubBudget struct {
	stats    ratelimit.Stats
	statsErr error
}

func (b *stubBudget) Acquire(context.Context) (time.Duration, error) { return 0, nil }
func (b *stubBudget) Record(context.Context) error                   { return nil }
func (b *stubBudget) Stats(context.Context) (ratelimit.Stats, error) {
	return b.stats, b.statsErr
}

type stubAnalytics struct {
	analytics store.Analytics
}

func (s *stubAnalytics) IncrementAnalytics(context.Context, store.AnalyticsDelta) error { return nil }
func (s *stubAnalytics) RecordScan(context.Context, time.Time, time.Duration, int) error {
	return nil
}
func (s *stubAnalytics) ReconcileAnalytics(context.Context) error { return nil }
func (s *stubAnalytics) GetAnalytics(context.Context) (*store.Analytics, error) {
	cp := s.analytics
	return &cp, nil
}

func newTestServer(t *testing.T) (*api.Server, *memory.Queue) {
	t.Helper()
	q := memory.NewQueue(8)
	budget := &stubBudget{stats: ratelimit.Stats{
		CallsThisMinute:   3,
		MaxCallsPerMinute: 8,
		MinDelay:          6500 * time.Millisecond,
	}}
	analytics := &stubAnalytics{analytics: store.Analytics{TotalMentions: 42}}
	return api.NewServer(q, budget, analytics, nil), q
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTriggerRefresh_Enqueues(t *testing.T) {
	srv, q := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subreddits/GoLang/refresh", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "golang", body["entity"])

	// The normalized name landed on the queue.
	name, ok, err := q.BlockPop(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "golang", name)
}

func TestTriggerRefresh_RejectsBadName(t *testing.T) {
	srv, q := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subreddits/a/refresh", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRateLimitStats(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ratelimit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats ratelimit.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.CallsThisMinute)
	assert.Equal(t, 8, stats.MaxCallsPerMinute)
}

func TestRateLimitStats_Unavailable(t *testing.T) {
	budget := &stubBudget{statsErr: errors.New("kv down")}
	srv := api.NewServer(memory.NewQueue(1), budget, &stubAnalytics{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ratelimit", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAnalytics(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 42, body["total_mentions"])
}

func TestTriggerRefresh_Throttled(t *testing.T) {
	srv := api.NewServer(memory.NewQueue(32), &stubBudget{}, &stubAnalytics{}, nil)

	// The trigger endpoint allows a burst of 10; the 11th immediate
	// request is rejected.
	var last int
	for i := 0; i < 11; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subreddits/golang/refresh", nil))
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
