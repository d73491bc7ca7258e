package handlers

import (
	"net/http"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/health"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker *health.HealthChecker
}

func NewHealthHandler(checker *health.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HandleHealth runs every dependency check. Unhealthy answers 503.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	overall := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if overall.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    overall.Status,
		"service":   "metricslab-backend",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  overall.Services,
		"uptime":    overall.Uptime,
	})
}
