// Package scmetrics exposes Prometheus collectors for session
// lifecycle, pool health, and circuit breaker state, grounded on the
// teacher's infrastructure/metrics package.
package scmetrics

import (
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/session-core/scconfig"
)

// Metrics holds every collector this module registers.
type Metrics struct {
	SessionsActive         prometheus.Gauge
	SessionsCreatedTotal    prometheus.Counter
	SessionsClosedTotal     prometheus.Counter
	SessionsLeakedTotal     prometheus.Counter
	PoolExhaustionTotal     prometheus.Counter
	SessionLifetimeSeconds  prometheus.Histogram

	BreakerState           *prometheus.GaugeVec
	BreakerTransitionsTotal *prometheus.CounterVec
	BreakerCallsTotal      *prometheus.CounterVec

	AuthCacheHitsTotal   prometheus.Counter
	AuthCacheMissesTotal prometheus.Counter
}

// New creates and registers a Metrics instance against the default
// registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a
// caller-supplied registerer, useful for isolated test registries.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_core_sessions_active",
			Help: "Current number of live request-scoped sessions.",
		}),
		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_sessions_created_total",
			Help: "Total number of sessions ever acquired.",
		}),
		SessionsClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_sessions_closed_total",
			Help: "Total number of sessions closed via normal scope exit or forced reap.",
		}),
		SessionsLeakedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_sessions_leaked_total",
			Help: "Total number of sessions force-closed by the leak detector.",
		}),
		PoolExhaustionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_pool_exhaustion_total",
			Help: "Total number of connection acquisitions that observed pool waiters.",
		}),
		SessionLifetimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "session_core_session_lifetime_seconds",
			Help:    "Observed lifetime of closed sessions, in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "session_core_breaker_state",
			Help: "Circuit breaker state as a number: 0=closed, 1=open, 2=half_open.",
		}, []string{"breaker"}),
		BreakerTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_core_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions.",
		}, []string{"breaker", "from", "to"}),
		BreakerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_core_breaker_calls_total",
			Help: "Total number of breaker-guarded calls, by result.",
		}, []string{"breaker", "result"}),
		AuthCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_auth_cache_hits_total",
			Help: "Total number of degraded-mode auth verdicts served from the token cache.",
		}),
		AuthCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_core_auth_cache_misses_total",
			Help: "Total number of degraded-mode auth requests with no cached verdict.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SessionsActive,
			m.SessionsCreatedTotal,
			m.SessionsClosedTotal,
			m.SessionsLeakedTotal,
			m.PoolExhaustionTotal,
			m.SessionLifetimeSeconds,
			m.BreakerState,
			m.BreakerTransitionsTotal,
			m.BreakerCallsTotal,
			m.AuthCacheHitsTotal,
			m.AuthCacheMissesTotal,
		)
	}

	return m
}

// breakerStateValue maps a breaker state name to the numeric encoding
// used by the BreakerState gauge. Matching is case-insensitive, so the
// breaker package's "OPEN"/"HALF_OPEN" names map the same as "open"/"half_open".
func breakerStateValue(state string) float64 {
	switch strings.ToLower(state) {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// RecordBreakerState sets the BreakerState gauge for a named breaker.
func (m *Metrics) RecordBreakerState(name, state string) {
	m.BreakerState.WithLabelValues(name).Set(breakerStateValue(state))
}

// RecordBreakerTransition increments the transition counter and syncs
// the state gauge in one call, the shape callers actually need from an
// OnStateChange callback.
func (m *Metrics) RecordBreakerTransition(name, from, to string) {
	m.BreakerTransitionsTotal.WithLabelValues(name, from, to).Inc()
	m.RecordBreakerState(name, to)
}

// RecordBreakerCall increments the call counter for a named breaker by
// result ("success", "failure", "rejected_open", "rejected_half_open",
// "timeout").
func (m *Metrics) RecordBreakerCall(name, result string) {
	m.BreakerCallsTotal.WithLabelValues(name, result).Inc()
}

// RecordSessionClosed records a closed session's observed lifetime.
func (m *Metrics) RecordSessionClosed(lifetimeSeconds float64) {
	m.SessionsClosedTotal.Inc()
	m.SessionLifetimeSeconds.Observe(lifetimeSeconds)
}

// Enabled reports whether metrics should be exposed: disabled by
// default in production unless explicitly turned on, enabled by
// default elsewhere unless explicitly turned off. Mirrors the
// teacher's metrics.Enabled().
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !scconfig.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global Metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global Metrics instance, initializing it with a
// placeholder service name if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("session-core")
	}
	return globalMetrics
}
