package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a private Prometheus registry; nothing is registered on the
// global default one. It always carries the HTTP collectors plus the Go
// runtime, process and build info collectors.
type Registry struct {
	reg     *prometheus.Registry
	http    *HTTPMetrics
	handler http.Handler
}

// NewRegistry builds a registry holding the defaults and extra.
func NewRegistry(extra ...prometheus.Collector) *Registry {
	r := &Registry{reg: prometheus.NewRegistry(), http: NewHTTPMetrics()}
	r.reg.MustRegister(r.http.Collectors()...)
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	r.reg.MustRegister(extra...)
	r.handler = promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.reg,
	})
	return r
}

// HTTP returns the collectors the public API middleware records into.
func (r *Registry) HTTP() *HTTPMetrics { return r.http }

// Register adds a collector, failing on a duplicate.
func (r *Registry) Register(c prometheus.Collector) error { return r.reg.Register(c) }

// Handler serves the exposition format, OpenMetrics when negotiated.
func (r *Registry) Handler() http.Handler { return r.handler }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
