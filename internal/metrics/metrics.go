// Package metrics provides Prometheus metrics for ingestion, the real-time
// channel and aggregation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRecordsIngested   = "analytics_records_ingested_total"
	MetricIngestFailures    = "analytics_ingest_failures_total"
	MetricRecordsSpooled    = "analytics_records_spooled_total"
	MetricSubscribers       = "analytics_realtime_subscribers"
	MetricSubscribersDrops  = "analytics_realtime_subscriber_drops_total"
	MetricLiveVisitors      = "analytics_live_visitors"
	MetricAggregateDuration = "analytics_aggregate_duration_seconds"
)

// Metrics contains the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	recordsIngested   *prometheus.CounterVec
	ingestFailures    prometheus.Counter
	recordsSpooled    prometheus.Counter
	subscribers       prometheus.Gauge
	subscriberDrops   prometheus.Counter
	liveVisitors      prometheus.Gauge
	aggregateDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRecordsIngested,
			Help: "Total number of records appended to the event log, by kind",
		}, []string{"kind"}),
		ingestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricIngestFailures,
			Help: "Total number of failed event log appends",
		}),
		recordsSpooled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecordsSpooled,
			Help: "Total number of records written to the local spool",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSubscribers,
			Help: "Number of dashboard connections subscribed to live analytics",
		}),
		subscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSubscribersDrops,
			Help: "Total number of subscribers disconnected for falling behind",
		}),
		liveVisitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLiveVisitors,
			Help: "Approximate number of sessions active within the live window",
		}),
		aggregateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricAggregateDuration,
			Help:    "Time spent computing an analytics aggregate, by outcome",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
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

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recordsIngested,
		m.ingestFailures,
		m.recordsSpooled,
		m.subscribers,
		m.subscriberDrops,
		m.liveVisitors,
		m.aggregateDuration,
	}
}

func (m *Metrics) IncRecordsIngested(kind string) {
	if m == nil {
		return
	}
	m.recordsIngested.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncIngestFailures() {
	if m == nil {
		return
	}
	m.ingestFailures.Inc()
}

func (m *Metrics) AddRecordsSpooled(n int) {
	if m == nil {
		return
	}
	m.recordsSpooled.Add(float64(n))
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) IncSubscriberDrops() {
	if m == nil {
		return
	}
	m.subscriberDrops.Inc()
}

func (m *Metrics) SetLiveVisitors(n int) {
	if m == nil {
		return
	}
	m.liveVisitors.Set(float64(n))
}

// ObserveAggregate records one aggregate computation. outcome is "ok" or "error".
func (m *Metrics) ObserveAggregate(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.aggregateDuration.WithLabelValues(outcome).Observe(seconds)
}
