// Package metrics holds the Prometheus registry served on /metrics and the
// HTTP collectors of the public API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "listing"

// HTTPMetrics are the per-route request collectors of the public API.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func NewHTTPMetrics() *HTTPMetrics {
	labels := []string{"method", "route", "status"}
	return &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Public API latency by route pattern and status.",
			// listings answered from the cache land in the low buckets
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, labels),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Public API requests by route pattern and status.",
		}, labels),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Public API requests being served.",
		}),
	}
}

// Observe records one finished request. route must be the matched pattern,
// such as /api/v1/:entity, never the raw path.
func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.duration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(method, route, code).Inc()
}

// Track counts a request as in flight until the returned func is called.
func (m *HTTPMetrics) Track() (done func()) {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *HTTPMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.duration, m.requests, m.inFlight}
}
