package server

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/cache"
	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/health"
	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/middleware/ratelimit"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/observability/metrics"
	"github.com/nimburion/listing/pkg/resilience"
	"github.com/nimburion/listing/pkg/store"
	"github.com/nimburion/listing/pkg/store/redis"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 5 * time.Minute
)

// Runtime holds the process-wide clients and the listing engine built from config.
type Runtime struct {
	Store           *store.DocumentStore
	Cache           cache.Store
	Engine          *listing.Engine
	Health          *health.Registry
	MetricsRegistry *metrics.Registry
	Validator       auth.JWTValidator
	Limiter         ratelimit.RateLimiter

	startup  []LifecycleHook
	shutdown []LifecycleHook
}

// NewRuntime opens the document store and the cache and builds the engine.
//
// The document store is required. A cache that cannot be opened is logged and
// listings are served uncached; readiness then reports degraded.
func NewRuntime(cfg *config.Config, log logger.Logger) (*Runtime, error) {
	rt := &Runtime{Health: health.NewRegistry()}

	docStore, err := store.NewDocumentStore(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	rt.Store = docStore
	rt.shutdown = append(rt.shutdown, LifecycleHook{Name: "document_store", Fn: func(context.Context) error {
		return docStore.Close()
	}})
	rt.Health.Register(health.Required("database", docStore))

	entities, err := listing.RegistryFromConfig(cfg.Listing)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	listingMetrics := listing.NewMetrics()
	rt.MetricsRegistry = metrics.NewRegistry(listingMetrics.Collectors()...)

	var cacheStore *listing.CacheStore
	backend, err := cache.NewStore(cfg.Cache, log)
	if err != nil {
		log.Warn("cache unavailable, serving listings uncached", "type", cfg.Cache.Type, "error", err)
		rt.Health.Register(health.Unavailable("cache", err))
	} else {
		rt.Cache = backend
		rt.shutdown = append(rt.shutdown, LifecycleHook{Name: "cache", Fn: func(context.Context) error {
			return backend.Close()
		}})
		rt.Health.Register(health.Optional("cache", backend))
		cacheStore = listing.NewCacheStore(backend, listing.CacheStoreConfig{
			OperationTimeout: cfg.Cache.OperationTimeout,
			BreakerFailures:  cfg.Cache.BreakerFailures,
			BreakerCooldown:  cfg.Cache.BreakerCooldown,
		}, log, listingMetrics)
		rt.Health.Register(health.Probe{Name: "cache_breaker", Optional: true, Check: func(context.Context) error {
			if state := cacheStore.State(); state != resilience.StateClosed {
				return fmt.Errorf("cache circuit %s, listings bypass the cache", state)
			}
			return nil
		}})
	}

	executor := listing.NewQueryExecutor(docStore, docStore.System, cfg.Database.QueryTimeout, listingMetrics)
	rt.Engine = listing.NewEngine(entities, executor, cacheStore, listing.EngineConfig{
		CacheTTL:  cfg.Listing.CacheTTL,
		MaxLimit:  cfg.Listing.MaxLimit,
		KeyPrefix: cfg.Listing.KeyPrefix,
	}, log, listingMetrics)

	if cfg.Auth.Enabled {
		validator, err := auth.NewHMACValidator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience, log)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("configure auth: %w", err)
		}
		rt.Validator = validator
	}

	if cfg.RateLimit.Enabled {
		if err := rt.configureRateLimit(cfg, log); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	log.Info("listing runtime ready",
		"store", docStore.System,
		"entities", entities.Names(),
		"auth", cfg.Auth.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
	)
	return rt, nil
}

func (rt *Runtime) configureRateLimit(cfg *config.Config, log logger.Logger) error {
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		adapter, err := redis.Open(redis.Config{
			URL:              cfg.Cache.URL,
			MaxConns:         cfg.Cache.MaxConns,
			OperationTimeout: cfg.Cache.OperationTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("open rate limit redis: %w", err)
		}
		rt.shutdown = append(rt.shutdown, LifecycleHook{Name: "rate_limit_redis", Fn: func(context.Context) error {
			return adapter.Close()
		}})
		rt.Limiter = ratelimit.NewRedisRateLimiter(adapter.Client(), ratelimit.RedisConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			OperationTimeout:  cfg.Cache.OperationTimeout,
			Prefix:            cfg.Listing.KeyPrefix + ":ratelimit",
		}, log)
		return nil
	}

	limiter := ratelimit.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	rt.Limiter = limiter
	rt.startup = append(rt.startup, LifecycleHook{Name: "rate_limit_sweeper", Fn: func(ctx context.Context) error {
		go func() {
			ticker := time.NewTicker(limiterSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := limiter.Sweep(limiterIdleTimeout); n > 0 {
						log.Debug("rate limit buckets swept", "removed", n)
					}
				}
			}
		}()
		return nil
	}})
	return nil
}

// Options returns server options wired to the runtime.
func (rt *Runtime) Options(cfg *config.Config, log logger.Logger) *RunHTTPServersOptions {
	return &RunHTTPServersOptions{
		Config:          cfg,
		Logger:          log,
		Lister:          rt.Engine,
		HealthRegistry:  rt.Health,
		MetricsRegistry: rt.MetricsRegistry,
		Validator:       rt.Validator,
		Limiter:         rt.Limiter,
		StartupHooks:    rt.startup,
		ShutdownHooks:   rt.shutdown,
	}
}

// Close releases the runtime's clients without the server lifecycle. Used by
// one-shot commands and on construction failure.
func (rt *Runtime) Close() error {
	return stopHooks(rt.shutdown, defaultHookTimeout, logger.Nop())
}
