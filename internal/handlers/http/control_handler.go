package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	apperrors "rtmpscout/pkg/errors"
	"rtmpscout/pkg/utils"
	"rtmpscout/pkg/validation"
)

type ControlHandler struct {
	coordinator ports.ApplyCoordinator
	channel     ports.ControlChannel
	logger      *zap.SugaredLogger
}

func NewControlHandler(coordinator ports.ApplyCoordinator, channel ports.ControlChannel, logger *zap.SugaredLogger) *ControlHandler {
	return &ControlHandler{
		coordinator: coordinator,
		channel:     channel,
		logger:      logger,
	}
}

var _ ports.ControlHTTPHandler = (*ControlHandler)(nil)

func (h *ControlHandler) SetupRoutes(api *gin.RouterGroup) {
	obs := api.Group("/obs")
	{
		obs.POST("/apply", h.ApplySettings)
		obs.PUT("/settings", h.SetStreamSettings)
		obs.POST("/start", h.StartStream)
		obs.POST("/stop", h.StopStream)
	}
	api.PUT("/auto-apply", h.SetAutoApply)
}

// ApplySettings pushes the first discovered server and key right away.
func (h *ControlHandler) ApplySettings(c *gin.Context) {
	settings, err := h.coordinator.ApplyNow(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Infow("Stream settings applied by operator",
		"server", settings.Server,
		"stream_key", utils.MaskStreamKey(settings.Key),
	)
	c.JSON(http.StatusOK, gin.H{
		"server":     settings.Server,
		"stream_key": utils.MaskStreamKey(settings.Key),
	})
}

// SetStreamSettings pushes an operator-supplied pair, bypassing discovery.
func (h *ControlHandler) SetStreamSettings(c *gin.Context) {
	var req struct {
		Server string `json:"server" binding:"required"`
		Key    string `json:"stream_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	req.Server = utils.SanitizeString(req.Server)
	req.Key = utils.SanitizeString(req.Key)
	if err := validation.ValidateServerURL(req.Server); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateStreamKey(req.Key); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if !h.channel.IsConnected() {
		_ = c.Error(domain.ErrNotConnected)
		return
	}
	settings := domain.StreamSettings{Server: req.Server, Key: req.Key}
	if err := h.channel.ApplyStreamSettings(c.Request.Context(), settings); err != nil {
		_ = c.Error(fmt.Errorf("%w: %w", domain.ErrApplyFailed, err))
		return
	}

	h.logger.Infow("Stream settings set by operator",
		"server", req.Server,
		"stream_key", utils.MaskStreamKey(req.Key),
	)
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) StartStream(c *gin.Context) {
	if !h.channel.IsConnected() {
		_ = c.Error(domain.ErrNotConnected)
		return
	}
	if err := h.channel.StartStream(c.Request.Context()); err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeApplyFailed, "failed to start streaming", http.StatusBadGateway))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "streaming"})
}

func (h *ControlHandler) StopStream(c *gin.Context) {
	if !h.channel.IsConnected() {
		_ = c.Error(domain.ErrNotConnected)
		return
	}
	if err := h.channel.StopStream(c.Request.Context()); err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeApplyFailed, "failed to stop streaming", http.StatusBadGateway))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *ControlHandler) SetAutoApply(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.coordinator.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.coordinator.Enabled()})
}
