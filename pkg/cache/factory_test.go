package cache

import (
	"testing"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/observability/logger"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.CacheConfig
		wantName string
		wantErr  bool
	}{
		{name: "memory", cfg: config.CacheConfig{Type: "memory", Capacity: 10, NumShards: 2}, wantName: "memory"},
		{name: "memory with bad capacity", cfg: config.CacheConfig{Type: "memory"}, wantErr: true},
		{name: "redis without url", cfg: config.CacheConfig{Type: "redis"}, wantErr: true},
		{name: "unknown", cfg: config.CacheConfig{Type: "memcached"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.cfg, logger.Nop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			defer store.Close()
			if store.Name() != tt.wantName {
				t.Fatalf("Name() = %q, want %q", store.Name(), tt.wantName)
			}
		})
	}
}
