package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rtmpscout/internal/infrastructure/monitoring"
)

type HealthHandler struct {
	checker *monitoring.HealthChecker
}

func NewHealthHandler(checker *monitoring.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health is the liveness probe: the process answers, details are attached.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.CheckAll(c.Request.Context()))
}

// Ready fails while a critical check fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
