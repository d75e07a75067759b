package listing

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "listing"

// Metrics are the engine collectors. They are not registered globally; add
// Collectors to the registry served on /metrics.
type Metrics struct {
	requests      *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cacheResults  *prometheus.CounterVec
	breakerState  prometheus.Gauge
}

// NewMetrics creates the engine collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		// Labels: entity, source
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Listing requests served, by entity and source (cache or store).",
		}, []string{"entity", "source"}),
		// Labels: entity, phase
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Document store latency per listing query phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "phase"}),
		// Labels: operation, result
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_operations_total",
			Help:      "Cache operations by result (hit, miss, error, skipped, ok).",
		}, []string{"operation", "result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_breaker_open",
			Help:      "1 while the cache circuit breaker is not closed.",
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.queryDuration, m.cacheResults, m.breakerState}
}

func (m *Metrics) incRequest(entity string, source Source) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(entity, string(source)).Inc()
}

func (m *Metrics) observeQuery(entity, phase string, seconds float64) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(entity, phase).Observe(seconds)
}

func (m *Metrics) incCache(operation, result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}
