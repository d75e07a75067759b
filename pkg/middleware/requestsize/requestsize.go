// Package requestsize bounds the size of what a client may send: the raw
// query string carrying listing parameters and any request body.
package requestsize

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nimburion/listing/pkg/server/router"
)

// Limits are byte bounds. Zero disables a bound.
type Limits struct {
	Body  int64
	Query int
}

// Enabled reports whether any bound is set.
func (l Limits) Enabled() bool {
	return l.Body > 0 || l.Query > 0
}

// Middleware answers 414 when the query string exceeds Limits.Query and 413
// when the body exceeds Limits.Body, whether declared up front or found
// while the handler reads it.
func Middleware(limits Limits) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if limits.Query > 0 && len(req.URL.RawQuery) > limits.Query {
				return reject(c, http.StatusRequestURITooLong, "query_too_long",
					fmt.Sprintf("query string exceeds %d bytes", limits.Query))
			}
			if limits.Body <= 0 || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limits.Body {
				return bodyTooLarge(c, limits.Body)
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, limits.Body)
			c.SetRequest(req)

			err := next(c)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) && !c.Response().Written() {
				return bodyTooLarge(c, limits.Body)
			}
			return err
		}
	}
}

func bodyTooLarge(c router.Context, limit int64) error {
	return reject(c, http.StatusRequestEntityTooLarge, "request_too_large",
		fmt.Sprintf("request body exceeds %d bytes", limit))
}

func reject(c router.Context, status int, code, message string) error {
	return c.JSON(status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}
