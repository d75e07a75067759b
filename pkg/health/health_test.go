package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeDependency struct {
	err   error
	delay time.Duration
}

func (f fakeDependency) HealthCheck(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestProbe_Run(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name    string
		probe   Probe
		want    Status
		wantErr string
	}{
		{name: "store up", probe: Required("database", fakeDependency{}), want: StatusHealthy},
		{name: "store down", probe: Required("database", fakeDependency{err: refused}), want: StatusUnhealthy, wantErr: "refused"},
		{name: "cache up", probe: Optional("cache", fakeDependency{}), want: StatusHealthy},
		{name: "cache down degrades", probe: Optional("cache", fakeDependency{err: refused}), want: StatusDegraded, wantErr: "refused"},
		{
			name:    "slow store times out",
			probe:   Probe{Name: "slow", Check: fakeDependency{delay: time.Second}.HealthCheck, Timeout: 10 * time.Millisecond},
			want:    StatusUnhealthy,
			wantErr: "deadline",
		},
		{name: "cache never opened", probe: Unavailable("cache", refused), want: StatusDegraded, wantErr: "unavailable since startup: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.probe.run(context.Background())
			if res.Status != tt.want {
				t.Fatalf("status = %s, want %s (error %q)", res.Status, tt.want, res.Error)
			}
			if res.Name != tt.probe.Name {
				t.Fatalf("name = %q", res.Name)
			}
			if !strings.Contains(res.Error, tt.wantErr) || (tt.wantErr == "" && res.Error != "") {
				t.Fatalf("error = %q, want %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Check(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name    string
		probes  []Probe
		want    Status
		healthy bool
	}{
		{name: "no probes", want: StatusHealthy, healthy: true},
		{
			name:    "all healthy",
			probes:  []Probe{Required("database", fakeDependency{}), Optional("cache", fakeDependency{})},
			want:    StatusHealthy,
			healthy: true,
		},
		{
			name:    "cache down",
			probes:  []Probe{Required("database", fakeDependency{}), Optional("cache", fakeDependency{err: down})},
			want:    StatusDegraded,
			healthy: true,
		},
		{
			name:   "unhealthy wins over degraded",
			probes: []Probe{Optional("cache", fakeDependency{err: down}), Required("database", fakeDependency{err: down})},
			want:   StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			for _, p := range tt.probes {
				reg.Register(p)
			}
			report := reg.Check(context.Background())
			if report.Status != tt.want {
				t.Fatalf("status = %s, want %s", report.Status, tt.want)
			}
			if report.IsHealthy() != tt.healthy {
				t.Fatalf("IsHealthy() = %v, want %v", report.IsHealthy(), tt.healthy)
			}
			if len(report.Checks) != len(tt.probes) {
				t.Fatalf("got %d results", len(report.Checks))
			}
			for i := 1; i < len(report.Checks); i++ {
				if report.Checks[i-1].Name > report.Checks[i].Name {
					t.Fatal("results must be sorted by name")
				}
			}
		})
	}
}

func TestRegistry_ProbesRunConcurrently(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"a", "b", "c", "d"} {
		reg.Register(Required(name, fakeDependency{delay: 50 * time.Millisecond}))
	}

	start := time.Now()
	report := reg.Check(context.Background())
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("four 50ms probes took %s", elapsed)
	}
	if report.Status != StatusHealthy {
		t.Fatalf("status = %s", report.Status)
	}
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Required("cache", fakeDependency{err: errors.New("down")}))
	reg.Register(Optional("cache", fakeDependency{}))
	reg.Register(Required("database", fakeDependency{}))

	if names := reg.Names(); len(names) != 2 || names[0] != "cache" || names[1] != "database" {
		t.Fatalf("Names() = %v", names)
	}
	if report := reg.Check(context.Background()); report.Status != StatusHealthy {
		t.Fatalf("replaced probe still ran: %+v", report)
	}
}
