package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/contact-harvester/internal/progress"
)

// PrometheusSink exports session progress via Prometheus. It owns the
// collectors for sessions started/finished/running and per-platform counters.
type PrometheusSink struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsRunning  prometheus.Gauge
	sessionRuntime   *prometheus.HistogramVec
	sessionResults   prometheus.Histogram

	platformRuns     *prometheus.CounterVec
	platformAdded    *prometheus.CounterVec
	platformDuration *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_sessions_started_total",
			Help: "Total extraction sessions started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_sessions_finished_total",
			Help: "Total sessions finished partitioned by terminal status.",
		}, []string{"status"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_sessions_running",
			Help: "Current number of running sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		sessionResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_session_results",
			Help:    "Unique records per finished session.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		platformRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_platform_invocations_total",
			Help: "Platform invocations partitioned by platform and outcome (ran/skipped).",
		}, []string{"platform", "outcome"}),
		platformAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_platform_records_added_total",
			Help: "Unique records a platform contributed to sessions.",
		}, []string{"platform"}),
		platformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_platform_duration_seconds",
			Help:    "Platform invocation latency including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"platform"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsRunning,
		s.sessionRuntime,
		s.sessionResults,
		s.platformRuns,
		s.platformAdded,
		s.platformDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Name identifies the sink in hub logs.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
	case progress.StageSessionProgress:
		s.platformAdded.WithLabelValues(evt.Platform).Add(float64(len(evt.Added)))
	case progress.StagePlatformDone:
		outcome := "ran"
		if evt.Note == "skipped" {
			outcome = "skipped"
		}
		s.platformRuns.WithLabelValues(evt.Platform, outcome).Inc()
		if evt.Dur > 0 {
			s.platformDuration.WithLabelValues(evt.Platform).Observe(evt.Dur.Seconds())
		}
	case progress.StageSessionDone:
		status := string(evt.Status)
		s.sessionsFinished.WithLabelValues(status).Inc()
		s.sessionResults.Observe(float64(evt.Total))
		if evt.Dur > 0 {
			s.sessionRuntime.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.SessionID) {
			s.sessionsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

func (t *sessionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
