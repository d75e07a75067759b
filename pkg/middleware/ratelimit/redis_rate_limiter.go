package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/listing/pkg/observability/logger"
)

// RedisCounter is the subset of *redis.Client the limiter needs.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisConfig configures RedisRateLimiter. Zero values take defaults: one
// second windows, a 100ms operation timeout and the "ratelimit" prefix.
type RedisConfig struct {
	RequestsPerSecond int
	Burst             int
	Window            time.Duration
	OperationTimeout  time.Duration
	Prefix            string
}

// RedisRateLimiter counts requests per key in fixed windows shared by every
// replica. Each window has its own key, <prefix>:<key>:<window index>, so a
// counter whose expiry failed to apply never outlives its window. The limiter
// fails open when Redis is unavailable.
type RedisRateLimiter struct {
	client RedisCounter
	cfg    RedisConfig
	limit  int64
	log    logger.Logger
	now    func() time.Time
}

// NewRedisRateLimiter creates a limiter over an existing go-redis client.
func NewRedisRateLimiter(client RedisCounter, cfg RedisConfig, log logger.Logger) *RedisRateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 100 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	perWindow := float64(cfg.RequestsPerSecond) * cfg.Window.Seconds()
	return &RedisRateLimiter{
		client: client,
		cfg:    cfg,
		limit:  int64(perWindow) + int64(cfg.Burst),
		log:    log,
		now:    time.Now,
	}
}

// Allow increments key's counter for the current window.
func (r *RedisRateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
	defer cancel()

	redisKey := r.windowKey(key)
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		r.log.Warn("redis rate limiter unavailable, allowing request", "error", err)
		return true
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, 2*r.cfg.Window).Err(); err != nil {
			r.log.Warn("redis rate limiter failed to expire window", "key", redisKey, "error", err)
		}
	}
	return count <= r.limit
}

func (r *RedisRateLimiter) windowKey(key string) string {
	window := r.now().UnixNano() / int64(r.cfg.Window)
	return r.cfg.Prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}
