// Package metrics exposes Prometheus collectors for the harvester service.
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

// Collector attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
)

var (
	collectorAttemptsTotal     *prometheus.CounterVec
	collectorRecordsTotal      *prometheus.CounterVec
	collectorDroppedTotal      *prometheus.CounterVec
	collectorExhaustedTotal    *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeInvocations          prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectorAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_collector_attempts_total",
				Help: "Collector call attempts, labeled by collector and outcome.",
			},
			[]string{"collector", "outcome"},
		)

		collectorRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_collector_records_total",
				Help: "Canonical records returned per collector before session dedup.",
			},
			[]string{"collector"},
		)

		collectorDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_collector_dropped_records_total",
				Help: "Raw records discarded because the phone number failed canonicalization.",
			},
			[]string{"collector"},
		)

		collectorExhaustedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_collector_exhausted_total",
				Help: "Invocations that used every retry attempt without success.",
			},
			[]string{"collector"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_cache_lookups_total",
				Help: "Result cache lookups, labeled by collector and result (hit/miss).",
			},
			[]string{"collector", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeInvocations = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_invocations",
				Help: "Collector invocations currently executing.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"collector"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt counts one collector call attempt.
func ObserveAttempt(collector, outcome string) {
	Init()
	collectorAttemptsTotal.WithLabelValues(collector, outcome).Inc()
}

// ObserveRecords counts accepted and dropped records for one invocation.
func ObserveRecords(collector string, accepted, dropped int) {
	Init()
	if accepted > 0 {
		collectorRecordsTotal.WithLabelValues(collector).Add(float64(accepted))
	}
	if dropped > 0 {
		collectorDroppedTotal.WithLabelValues(collector).Add(float64(dropped))
	}
}

// ObserveExhausted counts an invocation that ran out of attempts.
func ObserveExhausted(collector string) {
	Init()
	collectorExhaustedTotal.WithLabelValues(collector).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(collector string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(collector, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveInvocations increments the active invocation gauge.
func IncActiveInvocations() {
	Init()
	activeInvocations.Inc()
}

// DecActiveInvocations decrements the active invocation gauge.
func DecActiveInvocations() {
	Init()
	activeInvocations.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(collector string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(collector).Observe(duration.Seconds())
}
