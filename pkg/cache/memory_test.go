package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(MemoryConfig{Capacity: 1000, NumShards: 4})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewMemoryStore_Validation(t *testing.T) {
	if _, err := NewMemoryStore(MemoryConfig{Capacity: 0, NumShards: 1}); err == nil {
		t.Error("expected capacity error")
	}
	if _, err := NewMemoryStore(MemoryConfig{Capacity: 10, NumShards: 0}); err == nil {
		t.Error("expected shard error")
	}
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() on empty store error = %v, want ErrCacheMiss", err)
	}

	value := []byte(`{"items":[]}`)
	if err := s.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"items":[]}` {
		t.Fatalf("stored value must not alias caller buffer, got %q", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() after delete error = %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(29 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("entry should be live before ttl, got %v", err)
	}

	now = now.Add(time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("entry should expire at ttl, got %v", err)
	}
}

func TestMemoryStore_DeleteByPattern(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = s.Set(ctx, fmt.Sprintf("listing:v1:tasks:search=:page=%d", i), []byte("x"), time.Minute)
	}
	_ = s.Set(ctx, "listing:v1:users:search=:page=1", []byte("x"), time.Minute)

	deleted, err := s.DeleteByPattern(ctx, "listing:v1:tasks:*")
	if err != nil {
		t.Fatalf("DeleteByPattern() error = %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted = %d, want 5", deleted)
	}
	if _, err := s.Get(ctx, "listing:v1:users:search=:page=1"); err != nil {
		t.Fatalf("unrelated namespace should survive, got %v", err)
	}

	if _, err := s.DeleteByPattern(ctx, ""); err == nil {
		t.Fatal("expected error for empty pattern")
	}
	if _, err := s.DeleteByPattern(ctx, "["); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	_ = s.Close()

	if err := s.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail after close")
	}
	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after close should be an error, not a miss: %v", err)
	}
	if err := s.Set(ctx, "k", nil, time.Minute); err == nil {
		t.Error("Set() should fail after close")
	}
}
