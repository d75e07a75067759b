package cache

import (
	"fmt"
	"strings"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/store/redis"
)

// NewStore selects and initializes the cache backend from config.
func NewStore(cfg config.CacheConfig, log logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.CacheTypeRedis:
		adapter, err := redis.Open(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(adapter), nil
	case config.CacheTypeMemory:
		store, err := NewMemoryStore(MemoryConfig{Capacity: cfg.Capacity, NumShards: cfg.NumShards})
		if err != nil {
			return nil, err
		}
		log.Info("in-process cache initialized", "capacity", cfg.Capacity, "shards", cfg.NumShards)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache.type %q (supported: redis, memory)", cfg.Type)
	}
}
