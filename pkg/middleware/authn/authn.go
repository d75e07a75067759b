// Package authn guards routes with bearer token authentication.
package authn

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/middleware/requestid"
	"github.com/nimburion/listing/pkg/server/router"
)

// ClaimsKey is the router context key holding the validated *auth.Claims.
const ClaimsKey = "claims"

// Authenticate requires an "Authorization: Bearer <token>" header accepted by
// validator. Claims are stored in the router context and in the request context.
func Authenticate(validator auth.JWTValidator) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return unauthorized(c, "auth.missing_token", "missing bearer token")
			}
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return unauthorized(c, "auth.invalid_header", "authorization header must be: Bearer <token>")
			}

			claims, err := validator.Validate(c.Request().Context(), token)
			if errors.Is(err, auth.ErrTokenExpired) {
				return unauthorized(c, "auth.token_expired", "token expired")
			}
			if err != nil {
				return unauthorized(c, "auth.invalid_token", "invalid token")
			}

			c.Set(ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

func unauthorized(c router.Context, code, message string) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer realm="listing"`)
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"error":      "unauthorized",
		"code":       code,
		"message":    message,
		"request_id": requestid.GetRequestID(c.Request().Context()),
	})
}
