// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchRetriesTotal          *prometheus.CounterVec
	inflightRequests           prometheus.Gauge
	limiterWaitSeconds         prometheus.Histogram
	papersTotal                *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_total",
				Help: "Total number of outbound fetch attempts, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
			},
			[]string{"kind"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by kind.",
			},
			[]string{"kind"},
		)

		inflightRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_inflight_requests",
				Help: "Number of outbound requests currently holding a connection slot.",
			},
		)

		limiterWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_limiter_wait_seconds",
				Help:    "Histogram of time spent waiting for a connection slot.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		)

		papersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_papers_total",
				Help: "Total number of papers by pipeline outcome.",
			},
			[]string{"outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of metadata records handled by the sink, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of catalog API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of catalog API latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(kind string, outcome string, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(kind, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncFetchRetry counts a retried fetch.
func IncFetchRetry(kind string) {
	Init()
	fetchRetriesTotal.WithLabelValues(kind).Inc()
}

// SetInflightRequests publishes the current number of held connection slots.
func SetInflightRequests(n int64) {
	Init()
	inflightRequests.Set(float64(n))
}

// ObserveLimiterWait records how long a caller waited for a connection slot.
func ObserveLimiterWait(d time.Duration) {
	Init()
	limiterWaitSeconds.Observe(d.Seconds())
}

// ObservePaper increments the paper counter for the given outcome.
func ObservePaper(outcome string) {
	Init()
	papersTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecord increments the record counter for the given status.
func ObserveRecord(status string) {
	Init()
	recordsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
