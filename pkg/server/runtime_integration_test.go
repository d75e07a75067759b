package server

import (
	"context"
	"testing"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/health"
	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/middleware/ratelimit"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/testutil"
)

func TestNewRuntime_RedisBackends(t *testing.T) {
	url := testutil.StartRedis(t)

	cfg := testConfig()
	cfg.Database.SeedFile = writeSeed(t)
	cfg.Cache.Type = config.CacheTypeRedis
	cfg.Cache.URL = url
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Backend = config.RateLimitBackendRedis
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1

	rt, err := NewRuntime(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	first, err := rt.Engine.List(ctx, "tasks", listing.Params{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	second, err := rt.Engine.List(ctx, "tasks", listing.Params{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if first.Source != listing.SourceStore || second.Source != listing.SourceCache {
		t.Fatalf("sources = %s, %s", first.Source, second.Source)
	}
	if string(first.Payload) != string(second.Payload) {
		t.Fatal("cached payload differs from the stored one")
	}

	deleted, err := rt.Cache.DeleteByPattern(ctx, listing.KeyDeriver{Prefix: cfg.Listing.KeyPrefix}.Pattern("tasks"))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteByPattern() = %d, %v", deleted, err)
	}

	if _, ok := rt.Limiter.(*ratelimit.RedisRateLimiter); !ok {
		t.Fatalf("limiter = %T", rt.Limiter)
	}
	allowed := 0
	for i := 0; i < 5; i++ {
		if rt.Limiter.Allow("ip:10.0.0.1") {
			allowed++
		}
	}
	// a window boundary can fall inside the loop
	if allowed < 2 || allowed > 4 {
		t.Fatalf("allowed %d of 5 requests", allowed)
	}

	if result := rt.Health.Check(ctx); result.Status != health.StatusHealthy {
		t.Fatalf("health = %+v", result)
	}
}
