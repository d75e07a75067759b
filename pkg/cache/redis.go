package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/listing/pkg/store/redis"
)

// redisClient is the subset of *redis.Adapter used by RedisStore.
type redisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// RedisStore stores entries in Redis.
type RedisStore struct {
	client redisClient
}

// NewRedisStore wraps a connected redis adapter.
func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Delete(ctx, key)
}

func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	return s.client.DeleteByPattern(ctx, pattern)
}

func (s *RedisStore) HealthCheck(ctx context.Context) error { return s.client.HealthCheck(ctx) }
func (s *RedisStore) Close() error                          { return s.client.Close() }
func (s *RedisStore) Name() string                          { return "redis" }
