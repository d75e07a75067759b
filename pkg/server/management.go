package server

import (
	"net/http"
	"time"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/health"
	"github.com/nimburion/listing/pkg/middleware/logging"
	"github.com/nimburion/listing/pkg/middleware/recovery"
	"github.com/nimburion/listing/pkg/middleware/requestid"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/observability/metrics"
	"github.com/nimburion/listing/pkg/server/router"
	"github.com/nimburion/listing/pkg/version"
)

// ManagementServer serves health, readiness, metrics and version on a port
// separate from the listing API.
type ManagementServer struct {
	*Server
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	info            version.Info
}

// NewManagementServer registers the management endpoints on r:
//
//	/health   liveness, always 200
//	/ready    readiness, 503 when a required dependency is unhealthy
//	/metrics  Prometheus exposition
//	/version  build metadata
//
// Probes are excluded from the access log.
func NewManagementServer(
	cfg config.ManagementConfig,
	r router.Router,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	info version.Info,
) *ManagementServer {
	r.Use(
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{
			ExcludedPathPrefixes: []string{"/health", "/ready", "/metrics"},
		}),
		recovery.Recovery(log),
	)

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		info:            info,
	}

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/version", s.handleVersion)
	return s
}

func (s *ManagementServer) handleHealth(c router.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

// handleReady answers 200 while the service can serve listings. A degraded
// cache still counts as ready.
func (s *ManagementServer) handleReady(c router.Context) error {
	result := s.healthRegistry.Check(c.Request().Context())
	if !result.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *ManagementServer) handleMetrics(c router.Context) error {
	s.metricsRegistry.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *ManagementServer) handleVersion(c router.Context) error {
	return c.JSON(http.StatusOK, s.info)
}
