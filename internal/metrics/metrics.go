// Package metrics holds the Prometheus collectors for workflow transitions,
// blob cleanup, the location ledger and HTTP requests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	transitions     *prometheus.CounterVec
	cleanupFailures prometheus.Counter
	locationAppends *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracky_transitions_total",
			Help: "Entity workflow operations by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracky_blob_cleanup_failures_total",
			Help: "Best-effort blob deletions that failed and were skipped.",
		}),
		locationAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracky_location_appends_total",
			Help: "Tracker location appends by outcome.",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracky_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	reg.MustRegister(m.transitions, m.cleanupFailures, m.locationAppends, m.httpDuration)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Transition counts one workflow operation.
func (m *Metrics) Transition(kind, op string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, op, outcome(err)).Inc()
}

// CleanupFailed counts one swallowed blob deletion failure.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// LocationAppended counts one ledger append.
func (m *Metrics) LocationAppended(err error) {
	if m == nil {
		return
	}
	m.locationAppends.WithLabelValues(outcome(err)).Inc()
}

// ObserveHTTP records one request's latency.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
