// Package tracing starts a server span per request so store and cache spans nest under it.
package tracing

import (
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/listing/pkg/middleware/requestid"
	obstracing "github.com/nimburion/listing/pkg/observability/tracing"
	"github.com/nimburion/listing/pkg/server/router"
)

// Tracing continues the caller's trace, if any, and wraps the request in a
// server span named after the matched route. Paths under an excluded prefix
// are not traced.
func Tracing(excluded ...string) router.MiddlewareFunc {
	tracer := otel.Tracer(obstracing.InstrumentationName)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if hasPrefix(req.URL.Path, excluded) {
				return next(c)
			}

			route := c.Route()
			if route == "" {
				route = "unmatched"
			}
			parent := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(parent, req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("url.path", req.URL.Path),
				),
			)
			defer span.End()

			if entity := c.Param("entity"); entity != "" {
				span.SetAttributes(attribute.String("listing.entity", entity))
			}
			if id := requestid.GetRequestID(req.Context()); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}

			c.SetRequest(req.WithContext(ctx))
			err := next(c)
			finish(span, c.Response(), err)
			return err
		}
	}
}

func finish(span trace.Span, w router.ResponseWriter, err error) {
	status := w.Status()
	if err != nil && !w.Written() {
		status = http.StatusInternalServerError
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if outcome := w.Header().Get("X-Cache"); outcome != "" {
		span.SetAttributes(attribute.String("listing.cache", outcome))
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 500:
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
