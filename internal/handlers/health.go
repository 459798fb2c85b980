package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/logger"
)

const healthTimeout = 2 * time.Second

// Pinger is anything health can probe: the ticket store, redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]Pinger
	version string
	log     *logger.Logger
}

func NewHealthHandler(checks map[string]Pinger, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, log: log}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("HEALTH", name+" check failed: "+err.Error())
			components[name] = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "up"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
		"service":    "vender",
		"version":    h.version,
	})
}
