package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricRateLimitChecks      = "rate_limit_checks_total"
	MetricRateLimitRejected    = "rate_limit_rejected_total"
	MetricRateLimitStoreErrors = "rate_limit_store_errors_total"
	MetricHTTPRequestDuration  = "http_request_duration_seconds"
	MetricHTTPRequestsTotal    = "http_requests_total"
	MetricHTTPResponseSize     = "http_response_size_bytes"
)

// Request bodies are capped well below a kilobyte (preference weights only),
// so only response size is tracked. Feed pages dominate it.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	httpResponseSizeBuckets = prometheus.ExponentialBuckets(256, 4, 6) // 256 B to 256 KiB
)

// Metrics holds the request and rate-limit collectors for the API.
type Metrics struct {
	rateLimitChecks      *prometheus.CounterVec
	rateLimitRejected    *prometheus.CounterVec
	rateLimitStoreErrors prometheus.Counter
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpResponseSize     *prometheus.HistogramVec
}

// NewMetrics builds unregistered collectors; call Register before serving.
func NewMetrics() *Metrics {
	routeLabels := []string{"method", "route", "status"}
	limitLabels := []string{"scope", "route", "key_type"}

	return &Metrics{
		rateLimitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitChecks,
			Help: "Rate limit checks by budget scope and route",
		}, limitLabels),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRejected,
			Help: "Requests rejected with 429 by budget scope and route",
		}, limitLabels),
		rateLimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitStoreErrors,
			Help: "Redis errors while counting requests; the request is allowed",
		}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "Time to serve a request, including feed ranking",
			Buckets: httpDurationBuckets,
		}, routeLabels),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Requests served by route and status",
		}, routeLabels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSize,
			Help:    "Response body size in bytes",
			Buckets: httpResponseSizeBuckets,
		}, routeLabels),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRateLimit counts one limiter decision for key on route.
func (m *Metrics) ObserveRateLimit(key, route string, allowed bool) {
	scope, kt := keyLabels(key)
	m.rateLimitChecks.WithLabelValues(scope, route, kt).Inc()
	if !allowed {
		m.rateLimitRejected.WithLabelValues(scope, route, kt).Inc()
	}
}

func (m *Metrics) IncRateLimitStoreErrors() {
	m.rateLimitStoreErrors.Inc()
}

// ObserveHTTPRequest records one served request. route must already be
// normalized by normalizePath.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64, responseSize int64) {
	m.httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpResponseSize.WithLabelValues(method, route, status).Observe(float64(responseSize))
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitChecks,
		m.rateLimitRejected,
		m.rateLimitStoreErrors,
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpResponseSize,
	}
}
