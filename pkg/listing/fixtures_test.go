package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimburion/listing/pkg/cache"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/repository/document"
)

// seedWorkspace loads a small workspace: 15 tasks titled "Report NN" plus one
// unrelated task, half of them pointing at a project that does not exist.
func seedWorkspace() *document.MemoryExecutor {
	e := document.NewMemoryExecutor()
	e.Insert("users",
		document.Document{"_id": "u1", "userName": "alice", "email": "alice@example.com", "fullName": "Alice A", "role": "employee", "password": "hash", "refreshToken": "rt"},
		document.Document{"_id": "u2", "userName": "bob", "email": "bob@example.com", "fullName": "Bob B", "role": "admin", "password": "hash"},
		document.Document{"_id": "u3", "userName": "carol", "email": "carol@example.com", "fullName": "Carol C", "role": "employee"},
	)
	e.Insert("designations",
		document.Document{"_id": "d1", "user": "u1", "department": "Engineering", "designation": "Lead"},
	)
	e.Insert("projects",
		document.Document{"_id": "p1", "name": "Apollo", "description": "Moon", "createdBy": "u1"},
	)
	for i := 1; i <= 15; i++ {
		project := "p1"
		if i%2 == 0 {
			project = "gone"
		}
		e.Insert("tasks", document.Document{
			"_id":               fmt.Sprintf("t%02d", i),
			"title":             fmt.Sprintf("Report %02d", i),
			"status":            "open",
			"associatedProject": project,
			"assignee":          "u1",
		})
	}
	e.Insert("tasks", document.Document{"_id": "t16", "title": "Unrelated chore", "status": "done"})
	e.Insert("comments",
		document.Document{"_id": "c1", "taskId": "t01", "content": "Looks (good).*", "author": "u1"},
		document.Document{"_id": "c2", "taskId": "t01", "content": "a.c literal", "author": "ghost"},
		document.Document{"_id": "c3", "taskId": "t02", "content": "abc", "author": "u2"},
	)
	return e
}

// countingAggregator wraps an Aggregator with call counters and injectable failures.
type countingAggregator struct {
	next     document.Aggregator
	queries  atomic.Int64
	counts   atomic.Int64
	queryErr error
	countErr error
	gate     chan struct{}
}

func (a *countingAggregator) Aggregate(ctx context.Context, collection string, p document.Pipeline) ([]document.Document, error) {
	a.queries.Add(1)
	if a.gate != nil {
		<-a.gate
	}
	if a.queryErr != nil {
		return nil, a.queryErr
	}
	return a.next.Aggregate(ctx, collection, p)
}

func (a *countingAggregator) Count(ctx context.Context, collection string, p document.Pipeline) (int64, error) {
	a.counts.Add(1)
	if a.countErr != nil {
		return 0, a.countErr
	}
	return a.next.Count(ctx, collection, p)
}

// fakeCache is an in-memory cache.Store with injectable failures.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	gets   int
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return value, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCache) DeleteByPattern(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeCache) HealthCheck(context.Context) error                      { return nil }
func (f *fakeCache) Close() error                                           { return nil }
func (f *fakeCache) Name() string                                           { return "fake" }

func (f *fakeCache) stats() (gets, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets
}

var errBackendDown = errors.New("backend down")

func newTestEngine(t *testing.T, agg document.Aggregator, store cache.Store) *Engine {
	t.Helper()
	registry, err := NewRegistry(Catalog()...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	metrics := NewMetrics()
	executor := NewQueryExecutor(agg, "memory", time.Second, metrics)
	cacheStore := NewCacheStore(store, CacheStoreConfig{
		OperationTimeout: time.Second,
		BreakerFailures:  3,
		BreakerCooldown:  time.Minute,
	}, logger.Nop(), metrics)
	return NewEngine(registry, executor, cacheStore, EngineConfig{
		CacheTTL:  30 * time.Second,
		MaxLimit:  100,
		KeyPrefix: DefaultKeyPrefix,
	}, logger.Nop(), metrics)
}

func itemIDs(items []document.Document) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprint(item[document.IDField])
	}
	return out
}
