package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger(t *testing.T, level LogLevel) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewZapLogger(Config{Level: level, Format: JSONFormat, Output: buf})
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	return log, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{DebugLevel, []string{"debug", "info", "warn", "error"}},
		{InfoLevel, []string{"info", "warn", "error"}},
		{WarnLevel, []string{"warn", "error"}},
		{ErrorLevel, []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			log, buf := newBufferLogger(t, tt.level)
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")
			_ = log.Sync()

			entries := decodeLines(t, buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, entry := range entries {
				if entry["level"] != tt.want[i] {
					t.Errorf("entry %d level = %v, want %s", i, entry["level"], tt.want[i])
				}
			}
		})
	}
}

func TestZapLogger_StructuredFields(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)
	log.With("component", "listing").Info("cache miss", "entity", "tasks", "page", 2)
	_ = log.Sync()

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "cache miss" || entry["component"] != "listing" || entry["entity"] != "tasks" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["page"] != float64(2) {
		t.Fatalf("page = %v", entry["page"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatal("timestamp field missing")
	}
}

func TestZapLogger_WithContext(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithContext(ContextWithRequestID(context.Background(), "req-123")).Info("tagged")
	log.WithContext(context.Background()).Info("untagged")
	_ = log.Sync()

	entries := decodeLines(t, buf)
	if entries[0]["request_id"] != "req-123" {
		t.Fatalf("request_id = %v", entries[0]["request_id"])
	}
	if _, ok := entries[1]["request_id"]; ok {
		t.Fatal("untagged entry must not carry request_id")
	}
}

func TestZapLogger_WithContextTraceIDs(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(ContextWithRequestID(context.Background(), "req-9"), sc)
	log.WithContext(ctx).Info("traced")
	_ = log.Sync()

	entry := decodeLines(t, buf)[0]
	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" || entry["span_id"] != "00f067aa0ba902b7" {
		t.Fatalf("trace fields = %v / %v", entry["trace_id"], entry["span_id"])
	}
	if entry["request_id"] != "req-9" {
		t.Fatalf("request_id = %v", entry["request_id"])
	}
}

func TestNew_BaseFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("info", "json", buf, "service", "listing-service")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.With("entity", "users").Info("ready")
	_ = log.Sync()

	entry := decodeLines(t, buf)[0]
	if entry["service"] != "listing-service" || entry["entity"] != "users" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(nil); got != "" { //nolint:staticcheck
		t.Fatalf("nil context = %q", got)
	}
	if got := RequestIDFromContext(context.WithValue(context.Background(), "request_id", "plain")); got != "" { //nolint:staticcheck
		t.Fatalf("untyped key must be ignored, got %q", got)
	}
	if got := RequestIDFromContext(ContextWithRequestID(context.Background(), "abc")); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"trace", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    LogFormat
		wantErr bool
	}{
		{"json", JSONFormat, false},
		{"text", TextFormat, false},
		{"console", TextFormat, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLogFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	if _, err := New("loud", "json", nil); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New("info", "yaml", nil); err == nil {
		t.Fatal("expected format error")
	}
	if _, err := New("info", "text", &bytes.Buffer{}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNop(t *testing.T) {
	log := Nop().With("k", "v").WithContext(context.Background())
	log.Info("ignored")
}
