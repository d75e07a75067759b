package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/listing/pkg/store/redis"
)

type fakeRedis struct {
	data     map[string][]byte
	getErr   error
	lastTTL  time.Duration
	patterns []string
	closed   bool
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string][]byte{}} }

func (f *fakeRedis) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, redis.ErrNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.lastTTL = ttl
	return nil
}

func (f *fakeRedis) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	f.patterns = append(f.patterns, pattern)
	return 3, nil
}

func (f *fakeRedis) HealthCheck(context.Context) error { return nil }
func (f *fakeRedis) Close() error                      { f.closed = true; return nil }

func TestRedisStore_TranslatesNotFound(t *testing.T) {
	s := NewRedisStore(newFakeRedis())
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_PropagatesBackendErrors(t *testing.T) {
	backend := newFakeRedis()
	backend.getErr = errors.New("connection refused")
	s := NewRedisStore(backend)

	_, err := s.Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrCacheMiss) {
		t.Fatalf("backend failure must not look like a miss: %v", err)
	}
}

func TestRedisStore_Delegates(t *testing.T) {
	backend := newFakeRedis()
	s := NewRedisStore(backend)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if backend.lastTTL != 30*time.Second {
		t.Errorf("ttl = %v", backend.lastTTL)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n, err := s.DeleteByPattern(ctx, "listing:*"); err != nil || n != 3 || backend.patterns[0] != "listing:*" {
		t.Errorf("DeleteByPattern() = %d, %v, patterns %v", n, err, backend.patterns)
	}
	if s.Name() != "redis" {
		t.Errorf("Name() = %q", s.Name())
	}
	_ = s.Close()
	if !backend.closed {
		t.Error("Close() must close the backend")
	}
}
