package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

const (
	memoryEvictionPercentage = 10
	// memoryMaxTTL bounds how long sturdyc keeps an entry. Shorter per-entry
	// TTLs are enforced on read.
	memoryMaxTTL = 24 * time.Hour
)

var errStoreClosed = errors.New("cache store is closed")

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore is an in-process sharded store built on sturdyc.
type MemoryStore struct {
	client *sturdyc.Client[memoryEntry]
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// MemoryConfig sizes the in-process store.
type MemoryConfig struct {
	Capacity         int
	NumShards        int
	EvictionInterval time.Duration
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("memory cache capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.NumShards <= 0 {
		return nil, fmt.Errorf("memory cache shards must be positive, got %d", cfg.NumShards)
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	return &MemoryStore{
		client: sturdyc.New[memoryEntry](cfg.Capacity, cfg.NumShards, memoryMaxTTL, memoryEvictionPercentage, opts...),
		now:    time.Now,
	}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, errStoreClosed
	}
	entry, ok := s.client.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !s.now().Before(entry.expiresAt) {
		s.client.Delete(key)
		return nil, ErrCacheMiss
	}
	return entry.payload, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.isClosed() {
		return errStoreClosed
	}
	if ttl <= 0 || ttl > memoryMaxTTL {
		ttl = memoryMaxTTL
	}
	payload := make([]byte, len(value))
	copy(payload, value)
	s.client.Set(key, memoryEntry{payload: payload, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.isClosed() {
		return errStoreClosed
	}
	s.client.Delete(key)
	return nil
}

// DeleteByPattern matches keys with path.Match, where '*' does not cross '/'.
func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	if s.isClosed() {
		return 0, errStoreClosed
	}
	if pattern == "" {
		return 0, fmt.Errorf("pattern is required")
	}
	var deleted int64
	for _, key := range s.client.ScanKeys() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return deleted, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if matched {
			s.client.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	if s.isClosed() {
		return errStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
