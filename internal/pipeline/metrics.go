package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/monitoring"
)

// Metrics bundles the engine's Prometheus instruments.
type Metrics struct {
	CallsTracked     *prometheus.CounterVec
	CallOutcomes     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	Matches          *prometheus.CounterVec
	MatchAttempts    prometheus.Counter
	Uploads          *prometheus.CounterVec
	RetriesExhausted prometheus.Counter
	SessionsExpired  prometheus.Counter
}

// The increment helpers are nil-safe so the engine can run without a
// metrics registry in tests.

func (m *Metrics) incTracked(direction string) {
	if m != nil {
		m.CallsTracked.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) incOutcome(outcome, direction string) {
	if m != nil {
		m.CallOutcomes.WithLabelValues(outcome, direction).Inc()
	}
}

func (m *Metrics) setActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

func (m *Metrics) incMatch(reason string) {
	if m != nil {
		m.Matches.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incMatchAttempt() {
	if m != nil {
		m.MatchAttempts.Inc()
	}
}

func (m *Metrics) incUpload(status string) {
	if m != nil {
		m.Uploads.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) incRetriesExhausted() {
	if m != nil {
		m.RetriesExhausted.Inc()
	}
}

func (m *Metrics) incSessionsExpired() {
	if m != nil {
		m.SessionsExpired.Inc()
	}
}

// NewMetrics registers the engine's metrics on the shared collector.
func NewMetrics(collector *monitoring.MetricsCollector) *Metrics {
	m := &Metrics{
		CallsTracked: collector.NewCounter(
			"callwatch_calls_tracked_total",
			"Calls entering the session tracker",
			[]string{"direction"},
		),
		CallOutcomes: collector.NewCounter(
			"callwatch_call_outcomes_total",
			"Classified outcomes of ended calls",
			[]string{"outcome", "direction"},
		),
		Matches: collector.NewCounter(
			"callwatch_matches_total",
			"Accepted recording matches by first reason",
			[]string{"reason"},
		),
		Uploads: collector.NewCounter(
			"callwatch_uploads_total",
			"Recording upload results",
			[]string{"status"},
		),
	}

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "callwatch_active_sessions",
		Help: "Sessions currently tracked (active plus pending correlation)",
	})
	collector.RegisterCustomMetric("callwatch_active_sessions", activeSessions)
	m.ActiveSessions = activeSessions

	matchAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callwatch_match_attempts_total",
		Help: "Scan-and-match attempts across all sessions",
	})
	collector.RegisterCustomMetric("callwatch_match_attempts_total", matchAttempts)
	m.MatchAttempts = matchAttempts

	retriesExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callwatch_retries_exhausted_total",
		Help: "Sessions whose correlation attempt budget ran out",
	})
	collector.RegisterCustomMetric("callwatch_retries_exhausted_total", retriesExhausted)
	m.RetriesExhausted = retriesExhausted

	sessionsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callwatch_sessions_expired_total",
		Help: "Pending sessions dropped after the maximum pending age",
	})
	collector.RegisterCustomMetric("callwatch_sessions_expired_total", sessionsExpired)
	m.SessionsExpired = sessionsExpired

	return m
}
