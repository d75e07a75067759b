package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/controller"
	"github.com/nimburion/listing/pkg/health"
	"github.com/nimburion/listing/pkg/middleware/ratelimit"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/observability/metrics"
	"github.com/nimburion/listing/pkg/observability/tracing"
	"github.com/nimburion/listing/pkg/server/router"
	ginrouter "github.com/nimburion/listing/pkg/server/router/gin"
	"github.com/nimburion/listing/pkg/version"
)

const tracerFlushTimeout = 10 * time.Second

// RunHTTPServersOptions is everything the two servers are built from. Only
// Lister is required; Runtime.Options fills the rest from a loaded config.
type RunHTTPServersOptions struct {
	Config *config.Config
	Logger logger.Logger

	Lister    controller.Lister
	Validator auth.JWTValidator
	Limiter   ratelimit.RateLimiter

	// Routers default to fresh gin routers.
	PublicRouter     router.Router
	ManagementRouter router.Router

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// HTTPServers is the public listing API and, unless disabled, the
// management server.
type HTTPServers struct {
	Public     *PublicAPIServer
	Management *ManagementServer
}

func (s *HTTPServers) all() []*Server {
	out := []*Server{s.Public.Server}
	if s.Management != nil {
		out = append(out, s.Management.Server)
	}
	return out
}

// BuildHTTPServers mounts routes and middleware. Nothing listens yet.
func BuildHTTPServers(opts *RunHTTPServersOptions) (*HTTPServers, error) {
	if opts.Lister == nil {
		return nil, errors.New("a lister is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.PublicRouter == nil {
		opts.PublicRouter = ginrouter.NewRouter()
	}
	if opts.MetricsRegistry == nil {
		opts.MetricsRegistry = metrics.NewRegistry()
	}

	servers := &HTTPServers{
		Public: NewPublicAPIServer(PublicOptions{
			HTTP:          opts.Config.HTTP,
			Observability: opts.Config.Observability,
			Lister:        opts.Lister,
			Validator:     opts.Validator,
			Limiter:       opts.Limiter,
			Metrics:       opts.MetricsRegistry.HTTP(),
		}, opts.PublicRouter, opts.Logger),
	}
	if !opts.Config.Management.Enabled {
		return servers, nil
	}

	if opts.ManagementRouter == nil {
		opts.ManagementRouter = ginrouter.NewRouter()
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	servers.Management = NewManagementServer(
		opts.Config.Management,
		opts.ManagementRouter,
		opts.Logger,
		opts.HealthRegistry,
		opts.MetricsRegistry,
		version.Current(serviceName(opts.Config)),
	)
	return servers, nil
}

// RunHTTPServers installs tracing, runs the startup hooks and serves until
// ctx is done or either server fails, which stops the other. Shutdown hooks
// run on every return path, after the servers have drained.
func RunHTTPServers(ctx context.Context, servers *HTTPServers, opts *RunHTTPServersOptions) error {
	switch {
	case servers == nil || servers.Public == nil:
		return errors.New("servers and public server are required")
	case opts.Logger == nil:
		return errors.New("logger is required")
	case opts.Config == nil:
		return errors.New("config is required")
	}
	log := opts.Logger

	info := version.Current(serviceName(opts.Config))
	log.Info("starting listing service",
		"service", info.Service,
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
		"go_version", info.GoVersion,
	)

	defer func() {
		if hookErr := runShutdownHooks(opts); hookErr != nil {
			log.Error("shutdown completed with errors", "error", hookErr)
		}
	}()

	tp, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    info.Service,
		ServiceVersion: info.Version,
		Environment:    environment(opts.Config),
		Endpoint:       opts.Config.Observability.TracingEndpoint,
		SampleRate:     opts.Config.Observability.TracingSampleRate,
		Enabled:        opts.Config.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer flushTraces(tp, log)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if err := runStartupHooks(runCtx, opts.StartupHooks, log); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	for _, srv := range servers.all() {
		g.Go(func() error {
			// a clean exit of one server stops the other as well
			defer stop()
			return srv.Start(gctx)
		})
	}
	return g.Wait()
}

// RunHTTPServersWithSignals runs the servers until SIGINT or SIGTERM, or
// the given signals.
func RunHTTPServersWithSignals(servers *HTTPServers, opts *RunHTTPServersOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()
	return RunHTTPServers(ctx, servers, opts)
}

func flushTraces(tp *tracing.Provider, log logger.Logger) {
	if !tp.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("trace flush failed", "error", err)
	}
}

func serviceName(cfg *config.Config) string {
	if cfg != nil {
		if name := strings.TrimSpace(cfg.Service.Name); name != "" {
			return name
		}
	}
	return version.Unknown
}

func environment(cfg *config.Config) string {
	if cfg != nil {
		if env := strings.TrimSpace(cfg.Service.Environment); env != "" {
			return env
		}
	}
	return version.Unknown
}
