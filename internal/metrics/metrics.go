// Package metrics exposes Prometheus collectors for the subindex service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiCallsTotal          *prometheus.CounterVec
	rateLimitSleepSeconds  prometheus.Histogram
	postsProcessedTotal    prometheus.Counter
	commentsStoredTotal    prometheus.Counter
	mentionsTotal          *prometheus.CounterVec
	refreshTotal           *prometheus.CounterVec
	scanCyclesTotal        prometheus.Counter
	refreshQueueDepthGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subindex_api_calls_total",
				Help: "Total upstream API calls, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		rateLimitSleepSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subindex_rate_limit_sleep_seconds",
				Help:    "Histogram of time spent sleeping in the shared rate budget.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		postsProcessedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "subindex_posts_processed_total",
				Help: "Total posts scanned for comments.",
			},
		)

		commentsStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "subindex_comments_stored_total",
				Help: "Total comments persisted (new or edited).",
			},
		)

		mentionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subindex_mentions_total",
				Help: "Total mention insert attempts, labeled by result.",
			},
			[]string{"result"},
		)

		refreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subindex_refresh_total",
				Help: "Total metadata refresh attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scanCyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "subindex_scan_cycles_total",
				Help: "Total completed scan cycles.",
			},
		)

		refreshQueueDepthGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "subindex_refresh_queue_depth",
				Help: "Approximate depth of the metadata refresh queue.",
			},
		)
	})
}

// ObserveAPICall records one upstream call with its classified outcome.
func ObserveAPICall(endpoint, outcome string) {
	if apiCallsTotal == nil {
		return
	}
	apiCallsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveRateLimitSleep records time spent blocked in the rate budget.
func ObserveRateLimitSleep(d time.Duration) {
	if rateLimitSleepSeconds == nil || d <= 0 {
		return
	}
	rateLimitSleepSeconds.Observe(d.Seconds())
}

// IncPostsProcessed counts a scanned post.
func IncPostsProcessed() {
	if postsProcessedTotal != nil {
		postsProcessedTotal.Inc()
	}
}

// IncCommentsStored counts a persisted comment.
func IncCommentsStored() {
	if commentsStoredTotal != nil {
		commentsStoredTotal.Inc()
	}
}

// IncMention counts one mention insert attempt by result ("inserted" or "conflict").
func IncMention(result string) {
	if mentionsTotal != nil {
		mentionsTotal.WithLabelValues(result).Inc()
	}
}

// IncRefresh counts one metadata refresh attempt by outcome.
func IncRefresh(outcome string) {
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(outcome).Inc()
	}
}

// IncScanCycle counts a completed scan cycle.
func IncScanCycle() {
	if scanCyclesTotal != nil {
		scanCyclesTotal.Inc()
	}
}

// SetRefreshQueueDepth records the observed refresh queue depth.
func SetRefreshQueueDepth(n int64) {
	if refreshQueueDepthGauge != nil {
		refreshQueueDepthGauge.Set(float64(n))
	}
}
