// Package requestid assigns every request an identifier.
package requestid

import (
	"context"

	"github.com/google/uuid"

	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server/router"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// maxInboundLength caps client supplied ids; longer ones are replaced.
const maxInboundLength = 128

// RequestID reuses a well-formed inbound X-Request-ID or generates a UUID. The
// id is echoed on the response and stored on the request context, where
// logger.WithContext picks it up.
func RequestID() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if !acceptable(requestID) {
				requestID = uuid.New().String()
			}

			c.Set(string(logger.RequestIDKey), requestID)
			c.Response().Header().Set(RequestIDHeader, requestID)
			ctx := logger.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetRequestID extracts the request ID from a context.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

func acceptable(id string) bool {
	if id == "" || len(id) > maxInboundLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
