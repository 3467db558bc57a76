package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/internal/core/services"
	httphandlers "rtmpscout/internal/handlers/http"
	"rtmpscout/internal/infrastructure/capture"
	"rtmpscout/internal/infrastructure/events"
	"rtmpscout/internal/infrastructure/monitoring"
	"rtmpscout/internal/infrastructure/obs"
	"rtmpscout/internal/infrastructure/repositories"
	"rtmpscout/pkg/tracing"
	"rtmpscout/pkg/utils"
)

const (
	obsReconnectInterval = 10 * time.Second
	redisCheckTimeout    = 2 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture, extract and auto-apply until interrupted",
	RunE:  runScout,
}

func runScout(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID := utils.GenerateSessionID()
	log.Infow("Starting rtmpscout", "instance", instanceID)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "rtmpscout",
		Version:     "dev",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("Tracing disabled", "error", err)
		tp = nil
	}

	repoFactory := repositories.NewRepositoryFactory(cfg, instanceID, log)
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("Error closing repository factory", "error", err)
		}
	}()

	var sink ports.Metrics
	if cfg.Monitoring.PrometheusEnabled {
		sink = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}
	metrics := services.NewMetricsService(sink)

	hub := events.NewHub(log)
	defer hub.Close()
	mirror := events.Fanout(repoFactory.CreateResultMirror(), hub)

	store := repoFactory.CreateResultStore()
	pipeline := services.NewCapturePipeline(
		services.NewFrameNormalizer(metrics),
		services.NewCredentialExtractor(log),
		store,
		mirror,
		metrics,
		log,
	)

	source := capture.NewSource(captureConfig(), metrics, log)
	source.OnError(func(err error) {
		log.Errorw("Capture stopped", "error", err)
	})

	obsClient := obs.NewClient(obs.Config{
		URL:             cfg.OBSAddress(),
		Password:        cfg.OBS.Password,
		RequestTimeout:  cfg.OBS.RequestTimeout,
		ConnectAttempts: cfg.OBS.ConnectAttempts,
		PingInterval:    cfg.OBS.PingInterval,
	}, metrics, log)
	obsClient.OnStatus(func(status domain.ChannelStatus, err error) {
		if err != nil {
			log.Warnw("OBS connection lost", "error", err)
			return
		}
		log.Infow("OBS connection state changed", "status", string(status))
	})
	obsClient.OnStatus(hub.ChannelStatusListener)

	coordinator := services.NewAutoApplyCoordinator(store, obsClient, services.CoordinatorConfig{
		Enabled:      cfg.AutoApply.Enabled,
		ApplyTimeout: cfg.AutoApply.ApplyTimeout,
	}, metrics, log)
	coordinator.OnStatus(func(phase domain.ApplyPhase, settings domain.StreamSettings, err error) {
		if phase == domain.ApplySucceeded {
			log.Infow("OBS stream settings updated", "server", settings.Server)
		}
	})
	coordinator.OnStatus(hub.ApplyStatusListener)

	poller := services.NewPoller(store, nil, coordinator, log)
	store.OnClear(coordinator.Reset)
	store.OnClear(poller.Forget)

	checker := monitoring.NewHealthChecker()
	checker.AddCaptureCheck(source)
	checker.AddControlCheck(obsClient)
	if repoFactory.UsingRedis() {
		checker.AddRedisCheck(repoFactory.HealthCheck, redisCheckTimeout)
	}

	if err := obsClient.Connect(ctx); err != nil {
		log.Warnw("Continuing without OBS; settings will be applied once it is reachable", "error", err)
	}

	if cfg.Capture.AutoStart {
		pipeline.Reset()
		if err := source.Start(ctx, cfg.Capture.Interface, cfg.Capture.Filter, pipeline.Handler()); err != nil {
			log.Errorw("Capture could not be started", "interface", cfg.Capture.Interface, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		superviseOBS(gctx, obsClient)
		return nil
	})

	if cfg.API.Enabled {
		srv := newAPIServer(pipeline, store, mirror, source, coordinator, obsClient, metrics, checker, hub)
		g.Go(func() error {
			log.Infow("Starting control API", "address", cfg.API.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorw("Error during server shutdown", "error", err)
				_ = srv.Close()
			}
			return nil
		})
	}

	err = g.Wait()
	log.Infow("Shutting down rtmpscout...", "event_clients", hub.Clients())

	source.Stop()
	coordinator.Wait()
	if err := obsClient.Close(); err != nil {
		log.Warnw("Error closing OBS connection", "error", err)
	}
	if tp != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Error shutting down tracer", "error", err)
		}
	}

	log.Info("rtmpscout stopped")
	return err
}

func captureConfig() capture.Config {
	return capture.Config{
		SnapLen:     cfg.Capture.SnapLen,
		Promiscuous: cfg.Capture.Promiscuous,
		ReadTimeout: cfg.Capture.ReadTimeout,
		StopTimeout: cfg.Capture.StopTimeout,
		Ports:       cfg.Capture.Ports,
	}
}

// superviseOBS reconnects a dropped control channel. A rejected password ends
// supervision; nothing will change until the config does.
func superviseOBS(ctx context.Context, client *obs.Client) {
	ticker := time.NewTicker(obsReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if client.IsConnected() {
			continue
		}
		err := client.Connect(ctx)
		if errors.Is(err, domain.ErrAuthFailed) {
			log.Errorw("OBS rejected the configured password, giving up on reconnects")
			return
		}
		if err == nil {
			log.Infow("Reconnected to OBS")
		}
	}
}

func newAPIServer(
	pipeline *services.CapturePipeline,
	store ports.ResultStore,
	mirror ports.ResultMirror,
	source *capture.Source,
	coordinator *services.AutoApplyCoordinator,
	client *obs.Client,
	metrics *services.MetricsService,
	checker *monitoring.HealthChecker,
	hub *events.Hub,
) *http.Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = prometheus.DefaultGatherer
	}

	router := httphandlers.NewRouter(cfg, httphandlers.RouterDeps{
		Capture: httphandlers.NewCaptureHandler(
			store,
			mirror,
			source,
			pipeline,
			coordinator,
			client,
			metrics,
			httphandlers.CaptureDefaults{Interface: cfg.Capture.Interface, Filter: cfg.Capture.Filter},
			log,
		),
		Control:  httphandlers.NewControlHandler(coordinator, client, log),
		Health:   httphandlers.NewHealthHandler(checker),
		Auth:     services.NewAuthService(cfg.API.JWTSecret, cfg.API.TokenTTL),
		Gatherer: gatherer,
		Events:   hub,
	}, log)

	return &http.Server{
		Addr:         cfg.API.Address,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
}
