package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.now
	return cb, clock
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Second})

	for i := 0; i < 2; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() = %v, want errBoom", err)
		}
	}
	if cb.GetState() != StateClosed || cb.GetFailures() != 2 {
		t.Fatalf("state = %v failures = %d", cb.GetState(), cb.GetFailures())
	}

	_ = cb.Execute(fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) || called {
		t.Fatalf("open circuit must reject without calling, err = %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Second})
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	if cb.GetState() != StateClosed {
		t.Fatalf("non-consecutive failures must not open, state = %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{name: "success closes", probe: succeed, want: StateClosed},
		{name: "failure reopens", probe: fail, want: StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
			_ = cb.Execute(fail)

			clock.advance(500 * time.Millisecond)
			if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitBreakerOpen) {
				t.Fatalf("cooldown not elapsed, got %v", err)
			}

			clock.advance(time.Second)
			_ = cb.Execute(tt.probe)
			if cb.GetState() != tt.want {
				t.Fatalf("state = %v, want %v", cb.GetState(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_SingleProbeInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	_ = cb.Execute(fail)
	clock.advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("second call during probe = %v, want ErrCircuitBreakerOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.GetState())
	}
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	errMiss := errors.New("miss")
	cb, _ := newTestBreaker(BreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		IsFailure:   func(err error) bool { return !errors.Is(err, errMiss) },
	})

	for i := 0; i < 5; i++ {
		if err := cb.Execute(func() error { return errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("error must pass through, got %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("ignored errors opened the circuit")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(BreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(fail)
	clock.advance(2 * time.Second)
	_ = cb.Execute(succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	_ = cb.Execute(fail)
	cb.Reset()
	if cb.GetState() != StateClosed || cb.GetFailures() != 0 {
		t.Fatalf("state = %v failures = %d", cb.GetState(), cb.GetFailures())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Execute() after reset = %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
