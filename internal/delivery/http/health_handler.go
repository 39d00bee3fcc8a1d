package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check requests.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checks map[string]HealthCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// Health handles GET /api/v1/health. Checks run concurrently; any failure
// turns the response into 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			if err := h.checks[name](ctx); err != nil {
				h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
				results[i] = "unavailable"
				return
			}
			results[i] = "ok"
		}(i, name)
	}
	wg.Wait()

	status, code := "ok", http.StatusOK
	services := gin.H{}
	for i, name := range names {
		services[name] = results[i]
		if results[i] != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":   status,
		"services": services,
	})
}
