// Package redis is the Redis client shared by the listing cache and the
// distributed rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/listing/pkg/observability/logger"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("redis: key not found")

const (
	// scanBatch is both the SCAN COUNT hint and the UNLINK batch size.
	scanBatch          = 500
	dialTimeout        = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
	clientName         = "listing"
)

// Config holds connection settings. URL uses the redis:// or rediss:// scheme.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

// Adapter wraps a pooled go-redis client.
type Adapter struct {
	client *redis.Client
	log    logger.Logger
}

// Open parses cfg.URL, connects and pings.
func Open(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis: URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	opts.ClientName = clientName
	opts.DialTimeout = dialTimeout
	if cfg.MaxConns > 0 {
		opts.PoolSize = cfg.MaxConns
	}
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	log.Info("redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return &Adapter{client: client, log: log}, nil
}

// Client exposes the go-redis client for callers needing other commands.
func (a *Adapter) Client() *redis.Client {
	return a.client
}

// Get returns the raw value stored at key.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key, expiring after ttl. A zero ttl never expires.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := a.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (a *Adapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := a.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: unlink %d keys: %w", len(keys), err)
	}
	return nil
}

// DeleteByPattern walks the keyspace with SCAN and unlinks matching keys in
// batches, so neither KEYS nor a large DEL ever blocks the server. It returns
// how many keys were removed, including on a partial failure.
func (a *Adapter) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, errors.New("redis: pattern is required")
	}

	var deleted int64
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := a.client.Unlink(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}

	iter := a.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("redis: unlink %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis: scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("redis: unlink %s: %w", pattern, err)
	}

	a.log.Info("redis keys deleted", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

// HealthCheck pings within two seconds.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := a.client.Ping(ctx).Err(); err != nil {
		a.log.Warn("redis health check failed", "error", err)
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the pool. Commands issued afterwards fail.
func (a *Adapter) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	a.log.Info("redis connection closed")
	return nil
}
