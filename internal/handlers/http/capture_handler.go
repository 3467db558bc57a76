package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/internal/infrastructure/export"
	apperrors "rtmpscout/pkg/errors"
	"rtmpscout/pkg/utils"
	"rtmpscout/pkg/validation"
)

const mirrorClearTimeout = 2 * time.Second

// CaptureDefaults fill in a start request that names no interface or filter.
type CaptureDefaults struct {
	Interface string
	Filter    string
}

type CaptureHandler struct {
	store       ports.ResultStore
	mirror      ports.ResultMirror
	source      ports.FrameSource
	pipeline    ports.FramePipeline
	coordinator ports.ApplyCoordinator
	channel     ports.ControlChannel
	stats       ports.StatsSource
	defaults    CaptureDefaults
	logger      *zap.SugaredLogger
}

func NewCaptureHandler(
	store ports.ResultStore,
	mirror ports.ResultMirror,
	source ports.FrameSource,
	pipeline ports.FramePipeline,
	coordinator ports.ApplyCoordinator,
	channel ports.ControlChannel,
	stats ports.StatsSource,
	defaults CaptureDefaults,
	logger *zap.SugaredLogger,
) *CaptureHandler {
	return &CaptureHandler{
		store:       store,
		mirror:      mirror,
		source:      source,
		pipeline:    pipeline,
		coordinator: coordinator,
		channel:     channel,
		stats:       stats,
		defaults:    defaults,
		logger:      logger,
	}
}

var _ ports.CaptureHTTPHandler = (*CaptureHandler)(nil)

func (h *CaptureHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/results", h.GetResults)
	api.DELETE("/results", h.ClearResults)
	api.POST("/export", h.ExportResults)
	api.GET("/interfaces", h.ListInterfaces)
	api.POST("/capture/start", h.StartCapture)
	api.POST("/capture/stop", h.StopCapture)
	api.GET("/status", h.GetStatus)
}

type endpointResponse struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

type urlResponse struct {
	URL         string           `json:"url"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      endpointResponse `json:"source"`
	Destination endpointResponse `json:"destination"`
	FrameSize   int              `json:"frame_size"`
}

type commandResponse struct {
	Command     domain.CommandKind `json:"command"`
	StreamKey   string             `json:"stream_key"`
	Timestamp   time.Time          `json:"timestamp"`
	Source      endpointResponse   `json:"source"`
	Destination endpointResponse   `json:"destination"`
	FrameSize   int                `json:"frame_size"`
}

type resultsResponse struct {
	URLs     []urlResponse     `json:"urls"`
	Commands []commandResponse `json:"commands"`
	Server   string            `json:"server,omitempty"`
	Key      string            `json:"stream_key,omitempty"`
	TakenAt  time.Time         `json:"taken_at"`
}

func toEndpoint(e domain.Endpoint) endpointResponse {
	return endpointResponse{IP: e.Addr.String(), Port: e.Port}
}

func (h *CaptureHandler) GetResults(c *gin.Context) {
	snap := h.store.Snapshot()

	resp := resultsResponse{
		URLs:     make([]urlResponse, 0, len(snap.URLRecords)),
		Commands: make([]commandResponse, 0, len(snap.Commands)),
		TakenAt:  snap.TakenAt,
	}
	for _, r := range snap.URLRecords {
		resp.URLs = append(resp.URLs, urlResponse{
			URL:         r.URL,
			Timestamp:   r.Timestamp,
			Source:      toEndpoint(r.Source),
			Destination: toEndpoint(r.Destination),
			FrameSize:   r.FrameSize,
		})
	}
	for _, cmd := range snap.Commands {
		resp.Commands = append(resp.Commands, commandResponse{
			Command:     cmd.Kind,
			StreamKey:   cmd.StreamKey,
			Timestamp:   cmd.Timestamp,
			Source:      toEndpoint(cmd.Source),
			Destination: toEndpoint(cmd.Destination),
			FrameSize:   cmd.FrameSize,
		})
	}
	resp.Server, _ = snap.LatestServer()
	resp.Key, _ = snap.LatestKey()

	c.JSON(http.StatusOK, resp)
}

// ClearResults empties the store; the store's clear hooks reset the
// coordinator so the next discovery is applied again.
func (h *CaptureHandler) ClearResults(c *gin.Context) {
	h.store.Clear()

	if h.mirror != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), mirrorClearTimeout)
		defer cancel()
		if err := h.mirror.Clear(ctx); err != nil {
			h.logger.Warnw("Failed to clear mirrored results", "error", err)
		}
	}

	h.logger.Infow("Results cleared")
	c.Status(http.StatusNoContent)
}

func (h *CaptureHandler) ExportResults(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateExportPath(req.Path); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	snap := h.store.Snapshot()
	if err := export.WriteJSON(req.Path, snap); err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "export failed", http.StatusInternalServerError))
		return
	}

	h.logger.Infow("Results exported", "path", req.Path, "urls", len(snap.URLs), "commands", len(snap.Commands))
	c.JSON(http.StatusOK, gin.H{
		"path":          req.Path,
		"unique_urls":   len(snap.URLs),
		"total_streams": len(snap.Commands),
	})
}

func (h *CaptureHandler) ListInterfaces(c *gin.Context) {
	ifaces, err := h.source.Interfaces()
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to list interfaces", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"interfaces": ifaces})
}

func (h *CaptureHandler) StartCapture(c *gin.Context) {
	var req struct {
		Interface *string `json:"interface"`
		Filter    *string `json:"filter"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
			return
		}
	}

	iface, filter := h.defaults.Interface, h.defaults.Filter
	if req.Interface != nil {
		iface = utils.SanitizeString(*req.Interface)
	}
	if req.Filter != nil {
		filter = utils.SanitizeString(*req.Filter)
	}
	if err := validation.ValidateInterfaceName(iface); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if h.source.Running() {
		_ = c.Error(domain.ErrCaptureRunning)
		return
	}

	h.pipeline.Reset()
	if err := h.source.Start(c.Request.Context(), iface, filter, h.pipeline.Handler()); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "started",
		"interface": iface,
		"filter":    filter,
	})
}

func (h *CaptureHandler) StopCapture(c *gin.Context) {
	if !h.source.Running() {
		_ = c.Error(domain.ErrCaptureStopped)
		return
	}
	h.source.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type statusResponse struct {
	Capture struct {
		Running bool   `json:"running"`
		Error   string `json:"error,omitempty"`
	} `json:"capture"`
	OBS struct {
		Connected bool `json:"connected"`
	} `json:"obs"`
	AutoApply struct {
		Enabled       bool   `json:"enabled"`
		InFlight      bool   `json:"in_flight"`
		AppliedServer string `json:"applied_server,omitempty"`
		AppliedKey    string `json:"applied_key,omitempty"`
	} `json:"auto_apply"`
	Stats struct {
		FramesSeen       uint64                        `json:"frames_seen"`
		FramesDuplicate  uint64                        `json:"frames_duplicate"`
		URLsDiscovered   uint64                        `json:"urls_discovered"`
		CommandsFound    map[domain.CommandKind]uint64 `json:"commands_found"`
		AppliesSucceeded uint64                        `json:"applies_succeeded"`
		AppliesFailed    uint64                        `json:"applies_failed"`
		LastApplyAt      string                        `json:"last_apply_at,omitempty"`
		LastApplyError   string                        `json:"last_apply_error,omitempty"`
	} `json:"stats"`
}

func (h *CaptureHandler) GetStatus(c *gin.Context) {
	var resp statusResponse

	resp.Capture.Running = h.source.Running()
	if err := h.source.Err(); err != nil {
		resp.Capture.Error = err.Error()
	}
	resp.OBS.Connected = h.channel.IsConnected()

	state := h.coordinator.State()
	resp.AutoApply.Enabled = h.coordinator.Enabled()
	resp.AutoApply.InFlight = state.InFlight
	resp.AutoApply.AppliedServer = state.Server
	resp.AutoApply.AppliedKey = utils.MaskStreamKey(state.Key)

	stats := h.stats.Stats()
	resp.Stats.FramesSeen = stats.FramesSeen
	resp.Stats.FramesDuplicate = stats.FramesDuplicate
	resp.Stats.URLsDiscovered = stats.URLsDiscovered
	resp.Stats.CommandsFound = stats.CommandsFound
	resp.Stats.AppliesSucceeded = stats.AppliesSucceeded
	resp.Stats.AppliesFailed = stats.AppliesFailed
	resp.Stats.LastApplyError = stats.LastApplyError
	if !stats.LastApplyAt.IsZero() {
		resp.Stats.LastApplyAt = utils.FormatClock(stats.LastApplyAt)
	}

	c.JSON(http.StatusOK, resp)
}
