package server

import (
	"strings"
	"time"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/controller"
	"github.com/nimburion/listing/pkg/middleware/authn"
	"github.com/nimburion/listing/pkg/middleware/logging"
	"github.com/nimburion/listing/pkg/middleware/metrics"
	"github.com/nimburion/listing/pkg/middleware/ratelimit"
	"github.com/nimburion/listing/pkg/middleware/recovery"
	"github.com/nimburion/listing/pkg/middleware/requestid"
	"github.com/nimburion/listing/pkg/middleware/requestsize"
	"github.com/nimburion/listing/pkg/middleware/tracing"
	"github.com/nimburion/listing/pkg/observability/logger"
	obsmetrics "github.com/nimburion/listing/pkg/observability/metrics"
	"github.com/nimburion/listing/pkg/server/router"
)

// APIPrefix is the path prefix of every listing route.
const APIPrefix = "/api/v1"

// slowRequestThreshold raises the access log entry of slower requests to warn.
const slowRequestThreshold = time.Second

// PublicAPIServer serves the listing API.
type PublicAPIServer struct {
	*Server
}

// PublicOptions carries what the public server mounts. Validator and Limiter
// are optional; nil disables authentication or rate limiting.
type PublicOptions struct {
	HTTP          config.HTTPConfig
	Observability config.ObservabilityConfig
	Lister        controller.Lister
	Validator     auth.JWTValidator
	Limiter       ratelimit.RateLimiter
	// Metrics disables request metrics when nil.
	Metrics *obsmetrics.HTTPMetrics
}

// NewPublicAPIServer applies the middleware stack to r and mounts the listing
// routes under /api/v1.
//
// Global middleware, outermost first: request id, logging, recovery, metrics,
// tracing (when enabled), request limits. The /api/v1 group adds authentication
// and then rate limiting, so authenticated clients are limited per subject.
func NewPublicAPIServer(opts PublicOptions, r router.Router, log logger.Logger) *PublicAPIServer {
	type middlewareEntry struct {
		name string
		fn   router.MiddlewareFunc
	}
	named := []middlewareEntry{
		{name: "request_id", fn: requestid.RequestID()},
		{name: "logging", fn: logging.WithConfig(log, logging.Config{SlowThreshold: slowRequestThreshold})},
		{name: "recovery", fn: recovery.Recovery(log)},
	}
	if opts.Metrics != nil {
		named = append(named, middlewareEntry{name: "metrics", fn: metrics.Metrics(opts.Metrics)})
	}
	if opts.Observability.TracingEnabled {
		named = append(named, middlewareEntry{name: "tracing", fn: tracing.Tracing()})
	}
	limits := requestsize.Limits{Body: opts.HTTP.MaxRequestSize, Query: opts.HTTP.MaxQueryLength}
	if limits.Enabled() {
		named = append(named, middlewareEntry{name: "request_limits", fn: requestsize.Middleware(limits)})
	}

	funcs := make([]router.MiddlewareFunc, 0, len(named))
	names := make([]string, 0, len(named))
	for _, entry := range named {
		funcs = append(funcs, entry.fn)
		names = append(names, entry.name)
	}

	var group []router.MiddlewareFunc
	if opts.Validator != nil {
		group = append(group, authn.Authenticate(opts.Validator))
		names = append(names, "authn")
	}
	if opts.Limiter != nil {
		group = append(group, ratelimit.RateLimit(opts.Limiter, ratelimit.Config{}))
		names = append(names, "rate_limit")
	}
	log.Debug("active middleware stack", "middlewares", strings.Join(names, ", "))

	r.Use(funcs...)
	controller.NewListingController(opts.Lister, log).Register(r.Group(APIPrefix, group...))

	return &PublicAPIServer{
		Server: NewServer(Config{
			Port:         opts.HTTP.Port,
			ReadTimeout:  opts.HTTP.ReadTimeout,
			WriteTimeout: opts.HTTP.WriteTimeout,
			IdleTimeout:  opts.HTTP.IdleTimeout,
		}, r, log),
	}
}
