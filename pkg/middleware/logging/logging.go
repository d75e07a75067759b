// Package logging writes one access log entry per request.
package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/listing/pkg/middleware/requestid"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server/router"
)

// Log field names.
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldRoute      = "route"
	FieldEntity     = "entity"
	FieldQuery      = "query_string"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldCache      = "cache"
	FieldSlow       = "slow"
	FieldError      = "error"
)

// Config tunes the access log.
type Config struct {
	// ExcludedPathPrefixes are never logged, e.g. probes.
	ExcludedPathPrefixes []string
	// SlowThreshold raises successful requests that took longer to warn.
	// Zero disables the check.
	SlowThreshold time.Duration
}

func (c Config) skip(path string) bool {
	for _, prefix := range c.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Logging logs every request.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, Config{})
}

// WithConfig logs each request once it completes: 5xx at error, 4xx and slow
// requests at warn, the rest at info. Listing requests carry the entity and
// the X-Cache outcome.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.skip(c.Request().URL.Path) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			req := c.Request()
			status := c.Response().Status()
			if err != nil && !c.Response().Written() {
				status = http.StatusInternalServerError
			}
			route := c.Route()
			if route == "" {
				route = "unmatched"
			}

			fields := []any{
				FieldRequestID, requestid.GetRequestID(req.Context()),
				FieldMethod, req.Method,
				FieldRoute, route,
				FieldStatus, status,
				FieldDurationMS, elapsed.Milliseconds(),
			}
			if entity := c.Param("entity"); entity != "" {
				fields = append(fields, FieldEntity, entity)
			}
			if req.URL.RawQuery != "" {
				fields = append(fields, FieldQuery, req.URL.RawQuery)
			}
			if outcome := c.Response().Header().Get("X-Cache"); outcome != "" {
				fields = append(fields, FieldCache, outcome)
			}
			slow := cfg.SlowThreshold > 0 && elapsed > cfg.SlowThreshold
			if slow {
				fields = append(fields, FieldSlow, true)
			}
			if err != nil {
				fields = append(fields, FieldError, err.Error())
			}

			switch {
			case status >= 500:
				log.Error("request completed", fields...)
			case status >= 400 || slow:
				log.Warn("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return err
		}
	}
}
