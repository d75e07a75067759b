package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/listing/pkg/observability/logger"
)

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.JSONFormat,
	})
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	return log
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "empty URL", cfg: Config{}, want: "URL is required"},
		{name: "bad scheme", cfg: Config{URL: "memcached://localhost:11211"}, want: "parse URL"},
		{name: "unreachable", cfg: Config{URL: "redis://127.0.0.1:1/0", OperationTimeout: time.Second}, want: "ping 127.0.0.1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.cfg, newTestLogger(t))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Open() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDeleteByPattern_RequiresPattern(t *testing.T) {
	a := &Adapter{log: newTestLogger(t)}
	if _, err := a.DeleteByPattern(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty pattern")
	}
}

func TestDelete_NoKeysIsNoop(t *testing.T) {
	a := &Adapter{log: newTestLogger(t)}
	if err := a.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
