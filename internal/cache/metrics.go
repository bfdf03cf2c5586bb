package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Metrics names as constants for consistency.
const (
	MetricCacheRequestsTotal = "cache_requests_total"
	MetricCacheBreakerState  = "cache_breaker_state"
)

// Result labels for cache lookups and writes.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultError  = "error"
	ResultBypass = "bypass" // breaker open, Redis skipped
)

// Metrics contains Prometheus metrics shared by all Redis-backed caches.
type Metrics struct {
	requests     *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

// NewMetrics creates cache metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheRequestsTotal,
				Help: "Total number of cache operations by cache name and result",
			},
			[]string{"cache", "result"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricCacheBreakerState,
				Help: "Circuit breaker state per cache (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.breakerState}
}

// ObserveResult counts one cache operation outcome.
func (m *Metrics) ObserveResult(cache, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(cache, result).Inc()
}

// Counter returns the counter for one cache and result.
func (m *Metrics) Counter(cache, result string) prometheus.Counter {
	return m.requests.WithLabelValues(cache, result)
}

// SetBreakerState records the current breaker state.
func (m *Metrics) SetBreakerState(breaker string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(breaker).Set(float64(state))
}
