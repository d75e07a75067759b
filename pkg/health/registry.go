// Package health aggregates dependency probes into the readiness report
// served on /ready and printed by the healthcheck command.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of one probe or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means listings are still served, without the cache.
	StatusDegraded Status = "degraded"
)

const (
	requiredTimeout = 5 * time.Second
	optionalTimeout = 3 * time.Second
)

// Dependency is implemented by the document store and cache adapters.
type Dependency interface {
	HealthCheck(ctx context.Context) error
}

// Probe checks one dependency. A failing Optional probe degrades the
// service; a failing required one makes it unhealthy.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Timeout  time.Duration
	Optional bool
}

// Required probes a dependency listings cannot be served without.
func Required(name string, dep Dependency) Probe {
	return Probe{Name: name, Check: dep.HealthCheck, Timeout: requiredTimeout}
}

// Optional probes a dependency listings can bypass.
func Optional(name string, dep Dependency) Probe {
	return Probe{Name: name, Check: dep.HealthCheck, Timeout: optionalTimeout, Optional: true}
}

// Unavailable reports an optional dependency that could not be opened at
// startup. It fails on every run with cause.
func Unavailable(name string, cause error) Probe {
	return Probe{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			return fmt.Errorf("unavailable since startup: %w", cause)
		},
	}
}

func (p Probe) run(ctx context.Context) CheckResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = requiredTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	res := CheckResult{Name: p.Name, Status: StatusHealthy, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusUnhealthy
		if p.Optional {
			res.Status = StatusDegraded
		}
		res.Error = err.Error()
	}
	return res
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of every probe. Status is the worst probe status.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// IsHealthy reports whether the service can take traffic. A degraded
// service still can.
func (r Report) IsHealthy() bool {
	return r.Status != StatusUnhealthy
}

// Registry holds the probes of a process. Registering a name twice replaces
// the earlier probe.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

func (r *Registry) Register(p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[p.Name] = p
}

// Names returns the registered probe names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every probe concurrently, each under its own timeout, and
// returns results ordered by name.
func (r *Registry) Check(ctx context.Context) Report {
	names := r.Names()
	r.mu.RLock()
	probes := make([]Probe, len(names))
	for i, name := range names {
		probes[i] = r.probes[name]
	}
	r.mu.RUnlock()

	results := make([]CheckResult, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = p.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return Report{Status: overall, Checks: results, CheckedAt: time.Now().UTC()}
}
