package listing

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/listing/pkg/cache"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/observability/tracing"
	"github.com/nimburion/listing/pkg/resilience"
)

// CacheStoreConfig tunes the fail-open wrapper.
type CacheStoreConfig struct {
	// OperationTimeout bounds each cache call. Non-positive disables it.
	OperationTimeout time.Duration
	// BreakerFailures consecutive backend errors open the breaker for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// CacheStore wraps a cache.Store so that cache problems never fail a listing:
// errors on Get are misses and errors on Set are logged and dropped. A circuit
// breaker stops calling a failing backend until the cooldown elapses.
type CacheStore struct {
	store   cache.Store
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	log     logger.Logger
	metrics *Metrics
}

// NewCacheStore creates a fail-open cache wrapper.
func NewCacheStore(store cache.Store, cfg CacheStoreConfig, log logger.Logger, metrics *Metrics) *CacheStore {
	if log == nil {
		log = logger.Nop()
	}
	c := &CacheStore{store: store, timeout: cfg.OperationTimeout, log: log, metrics: metrics}
	c.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
		MaxFailures: cfg.BreakerFailures,
		Cooldown:    cfg.BreakerCooldown,
		IsFailure: func(err error) bool {
			return !errors.Is(err, cache.ErrCacheMiss)
		},
		OnStateChange: func(from, to resilience.State) {
			log.Warn("cache circuit breaker state changed",
				"backend", store.Name(), "from", from.String(), "to", to.String())
			metrics.setBreakerOpen(to != resilience.StateClosed)
		},
	})
	return c
}

// Get returns the cached payload and whether it was found.
func (c *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, span := tracing.StartCache(ctx, tracing.CacheSpan{System: c.store.Name(), Operation: "get", Key: key})

	var payload []byte
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			var err error
			payload, err = c.store.Get(ctx, key)
			return err
		})
	})

	switch {
	case err == nil:
		tracing.SetCacheHit(span, true)
		tracing.End(span, nil)
		c.metrics.incCache("get", "hit")
		return payload, true
	case errors.Is(err, cache.ErrCacheMiss):
		tracing.SetCacheHit(span, false)
		tracing.End(span, nil)
		c.metrics.incCache("get", "miss")
	case errors.Is(err, resilience.ErrCircuitBreakerOpen):
		tracing.End(span, err)
		c.metrics.incCache("get", "skipped")
	default:
		tracing.End(span, err)
		c.metrics.incCache("get", "error")
		c.log.WithContext(ctx).Warn("cache get failed, treating as miss", "key", key, "error", err)
	}
	return nil, false
}

// Set stores payload for ttl. Failures are logged, never returned.
func (c *CacheStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	ctx, span := tracing.StartCache(ctx, tracing.CacheSpan{System: c.store.Name(), Operation: "set", Key: key})

	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			return c.store.Set(ctx, key, payload, ttl)
		})
	})
	tracing.End(span, err)

	switch {
	case err == nil:
		c.metrics.incCache("set", "ok")
	case errors.Is(err, resilience.ErrCircuitBreakerOpen):
		c.metrics.incCache("set", "skipped")
	default:
		c.metrics.incCache("set", "error")
		c.log.WithContext(ctx).Warn("cache set failed, response not cached", "key", key, "error", err)
	}
}

// State reports the breaker state, for health reporting.
func (c *CacheStore) State() resilience.State {
	return c.breaker.GetState()
}
