package feed

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricFeedRequestsTotal       = "feed_requests_total"
	MetricFeedRankDuration        = "feed_rank_duration_seconds"
	MetricFeedCandidates          = "feed_candidates"
	MetricFeedSnapshotHitsTotal   = "feed_snapshot_hits_total"
	MetricFeedLastSnapshotSeconds = "feed_trending_last_snapshot_timestamp_seconds"
)

// Snapshot lookup results.
const (
	SnapshotHit   = "hit"
	SnapshotMiss  = "miss"
	SnapshotError = "error"
)

// Metrics contains Prometheus metrics for feed assembly.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	rankDuration *prometheus.HistogramVec
	candidates   prometheus.Histogram
	snapshotHits *prometheus.CounterVec
	lastSnapshot prometheus.Gauge
}

// NewMetrics creates feed metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedRequestsTotal,
				Help: "Total number of feeds served by mode and whether the personalized feed fell back",
			},
			[]string{"mode", "fallback"},
		),
		rankDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricFeedRankDuration,
				Help:    "Time spent ranking feed candidates in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"mode"},
		),
		candidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricFeedCandidates,
				Help:    "Number of candidate requests considered per feed",
				Buckets: []float64{0, 10, 25, 50, 100, 200, 500},
			},
		),
		snapshotHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedSnapshotHitsTotal,
				Help: "Trending snapshot lookups by result",
			},
			[]string{"result"},
		),
		lastSnapshot: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricFeedLastSnapshotSeconds,
				Help: "Unix timestamp of the last stored trending snapshot",
			},
		),
	}
}

// Register registers all feed metrics with reg.
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
	return []prometheus.Collector{
		m.requests,
		m.rankDuration,
		m.candidates,
		m.snapshotHits,
		m.lastSnapshot,
	}
}

// IncRequests counts a served feed.
func (m *Metrics) IncRequests(mode Mode, fallback bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(mode), strconv.FormatBool(fallback)).Inc()
}

// ObserveRankDuration records how long ranking took.
func (m *Metrics) ObserveRankDuration(mode Mode, seconds float64) {
	if m == nil {
		return
	}
	m.rankDuration.WithLabelValues(string(mode)).Observe(seconds)
}

// ObserveCandidates records the candidate pool size.
func (m *Metrics) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(n))
}

// IncSnapshot counts a trending snapshot lookup.
func (m *Metrics) IncSnapshot(result string) {
	if m == nil {
		return
	}
	m.snapshotHits.WithLabelValues(result).Inc()
}

// SetLastSnapshotTimestamp records when the trending snapshot was last stored.
func (m *Metrics) SetLastSnapshotTimestamp(unix float64) {
	if m == nil {
		return
	}
	m.lastSnapshot.Set(unix)
}
