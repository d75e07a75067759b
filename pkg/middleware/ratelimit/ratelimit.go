// Package ratelimit throttles clients of the listing API.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/server/router"
)

// RateLimiter decides whether a request for key may proceed. Implementations
// must be safe for concurrent use.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter keeps one token bucket per key in process memory.
// Buckets idle for longer than the idle timeout are dropped by Sweep.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter allows requestsPerSecond on average per key with
// bursts up to burst.
func NewTokenBucketLimiter(requestsPerSecond, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*bucket),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow consumes a token from key's bucket.
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = b
	}
	now := l.now()
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Sweep removes buckets not used since idle ago and returns how many were removed.
func (l *TokenBucketLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	removed := 0
	for key, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Config configures the middleware.
type Config struct {
	// KeyFunc extracts the rate limiting key. Defaults to KeyByClient.
	KeyFunc func(router.Context) string
	// RetryAfter is advertised on rejected requests. Defaults to one second.
	RetryAfter time.Duration
}

// RateLimit answers 429 with Retry-After once a client exceeds its budget.
func RateLimit(limiter RateLimiter, cfg Config) router.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByClient
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Second
	}
	retryAfter := strconv.Itoa(int((cfg.RetryAfter + time.Second - 1) / time.Second))

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if limiter.Allow(cfg.KeyFunc(c)) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "rate_limited",
				"message": "rate limit exceeded",
			})
		}
	}
}

// KeyByClient keys authenticated requests by subject and anonymous ones by client IP.
func KeyByClient(c router.Context) string {
	if claims, ok := auth.ClaimsFromContext(c.Request().Context()); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	return "ip:" + ExtractIPFromRequest(c.Request())
}

// ExtractIPFromRequest returns the first X-Forwarded-For hop, then X-Real-IP,
// then the host part of RemoteAddr.
func ExtractIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
