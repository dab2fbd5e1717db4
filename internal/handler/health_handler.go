package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billparse/internal/config"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cfg *config.ExtractConfig
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.ExtractConfig) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.cfg.APIKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "extraction API key not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
