// Package auth verifies bearer tokens on listing routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimburion/listing/pkg/observability/logger"
)

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Claims are the identity fields of a validated token.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Roles     []string
}

// HMACValidator verifies HS256 tokens signed with a shared secret. Issuer and
// audience are checked only when configured.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
	logger   logger.Logger
	now      func() time.Time
}

// NewHMACValidator creates a validator for tokens signed with secret.
func NewHMACValidator(secret, issuer, audience string, log logger.Logger) (*HMACValidator, error) {
	if len(secret) < 32 {
		return nil, errors.New("hmac secret must be at least 32 bytes")
	}
	return &HMACValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Validate parses tokenString and returns its claims.
func (v *HMACValidator) Validate(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := extractClaims(mapClaims)
	v.logger.Debug("token validated", "subject", claims.Subject)
	return claims, nil
}

func extractClaims(mc jwt.MapClaims) *Claims {
	claims := &Claims{}
	claims.Subject, _ = mc.GetSubject()
	// tokens issued by the user service carry the id as _id
	if claims.Subject == "" {
		claims.Subject, _ = mc["_id"].(string)
	}
	claims.Issuer, _ = mc.GetIssuer()
	claims.Email, _ = mc["email"].(string)
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = aud
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	switch roles := mc["roles"].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok && s != "" {
				claims.Roles = append(claims.Roles, s)
			}
		}
	case string:
		claims.Roles = strings.Fields(roles)
	}
	if role, ok := mc["role"].(string); ok && role != "" && !slices.Contains(claims.Roles, role) {
		claims.Roles = append(claims.Roles, role)
	}
	return claims
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored in ctx.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
