package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"go.uber.org/zap"
)

const serviceName = "prescription-companion"

// HealthCheck probes one configured backend
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness and the configured backends
type HealthHandler struct {
	analysis *service.AnalysisService
	cart     *service.CartService
	backends map[string]string
	checks   map[string]HealthCheck
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. backends maps a concern to
// the backend serving it and is reported verbatim.
func NewHealthHandler(analysis *service.AnalysisService, cart *service.CartService, backends map[string]string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		analysis: analysis,
		cart:     cart,
		backends: backends,
		checks:   make(map[string]HealthCheck),
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// AddCheck registers a probe; a failing probe turns the response into 503
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// GetHealth reports status, workspace sizes and backends
func (h *HealthHandler) GetHealth(c *gin.Context) {
	backends := make(map[string]string, len(h.backends)+len(h.checks))
	for name, backend := range h.backends {
		backends[name] = backend
	}

	status := http.StatusOK
	response := api.HealthResponse{
		Status:    "healthy",
		Service:   stringPtr(serviceName),
		Items:     intPtr(h.analysis.Len()),
		CartLines: intPtr(h.cart.Count()),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed",
				zap.String("check", name),
				zap.Error(err),
			)
			backends[name] = "unreachable"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}

	if len(backends) > 0 {
		response.Backends = &backends
	}
	c.JSON(status, response)
}
