package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rtmpscout/internal/core/services"
	"rtmpscout/internal/infrastructure/events"
	"rtmpscout/internal/infrastructure/middleware"
	"rtmpscout/pkg/config"
	apperrors "rtmpscout/pkg/errors"
	applogger "rtmpscout/pkg/logger"
)

type RouterDeps struct {
	Capture *CaptureHandler
	Control *ControlHandler
	Health  *HealthHandler
	Auth    services.AuthService
	// Events serves the live websocket feed; nil disables it.
	Events *events.Hub
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter assembles the control API. Probes and /metrics stay outside
// authentication.
func NewRouter(cfg *config.Config, deps RouterDeps, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(logger),
	)

	router.GET("/health", deps.Health.Health)
	router.GET("/ready", deps.Health.Ready)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.Use(
		middleware.RequestLoggerMiddleware(applogger.NewContextLogger(logger.Desugar())),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)
	if cfg.API.AuthEnabled {
		api.Use(middleware.AuthMiddleware(deps.Auth))
	}
	deps.Capture.SetupRoutes(api)
	deps.Control.SetupRoutes(api)
	if deps.Events != nil {
		api.GET("/events", gin.WrapF(deps.Events.HandleWebSocket))
	}

	router.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("route"))
	})

	return router
}
