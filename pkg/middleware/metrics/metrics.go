// Package metrics records per-route Prometheus metrics for the public API.
package metrics

import (
	"net/http"
	"time"

	obsmetrics "github.com/nimburion/listing/pkg/observability/metrics"
	"github.com/nimburion/listing/pkg/server/router"
)

// unmatchedRoute labels requests no route matched, so probing random paths
// cannot grow the series count.
const unmatchedRoute = "unmatched"

// Metrics records latency and count by method, route pattern and status,
// and tracks requests in flight. A handler error with nothing written
// counts as 500, which is what the router will answer.
func Metrics(m *obsmetrics.HTTPMetrics) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			done := m.Track()
			defer done()

			start := time.Now()
			err := next(c)

			status := c.Response().Status()
			if err != nil && !c.Response().Written() {
				status = http.StatusInternalServerError
			}
			route := c.Route()
			if route == "" {
				route = unmatchedRoute
			}
			m.Observe(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}
