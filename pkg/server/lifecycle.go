package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/listing/pkg/observability/logger"
)

const defaultHookTimeout = 10 * time.Second

// LifecycleHook is a named action run before the servers start or after
// they stop. A nil Fn is skipped.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

func (h LifecycleHook) label() string {
	if name := strings.TrimSpace(h.Name); name != "" {
		return name
	}
	return "unnamed"
}

// runStartupHooks runs hooks in order with ctx and stops at the first failure.
func runStartupHooks(ctx context.Context, hooks []LifecycleHook, log logger.Logger) error {
	for _, h := range hooks {
		if h.Fn == nil {
			continue
		}
		start := time.Now()
		if err := h.Fn(ctx); err != nil {
			log.Error("startup hook failed", "hook", h.label(), "error", err)
			return fmt.Errorf("startup hook %q: %w", h.label(), err)
		}
		log.Info("startup hook done", "hook", h.label(), "duration", time.Since(start))
	}
	return nil
}

// stopHooks runs hooks last-registered first, so clients opened later close
// before the ones they depend on. Every hook runs under its own timeout on a
// fresh context; failures are joined.
func stopHooks(hooks []LifecycleHook, timeout time.Duration, log logger.Logger) error {
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}
	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if h.Fn == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := h.Fn(ctx)
		cancel()
		if err != nil {
			log.Error("shutdown hook failed", "hook", h.label(), "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q: %w", h.label(), err))
			continue
		}
		log.Info("shutdown hook done", "hook", h.label())
	}
	return errors.Join(errs...)
}

func runShutdownHooks(opts *RunHTTPServersOptions) error {
	return stopHooks(opts.ShutdownHooks, opts.ShutdownHookTimeout, opts.Logger)
}
