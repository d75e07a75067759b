// Package cache stores serialized listing pages under derived keys.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key matching a glob pattern and returns how many were removed.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	HealthCheck(ctx context.Context) error
	Close() error
	// Name identifies the backend in spans, metrics and logs.
	Name() string
}
