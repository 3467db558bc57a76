package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

type PrometheusCollector struct {
	// Counters
	framesCaptured     *prometheus.CounterVec
	framesDuplicate    prometheus.Counter
	urlsDiscovered     prometheus.Counter
	commandsDiscovered *prometheus.CounterVec
	appliesTotal       *prometheus.CounterVec

	// Histograms
	applyDuration prometheus.Histogram

	// Gauges
	obsConnected   prometheus.Gauge
	captureRunning prometheus.Gauge
}

// NewPrometheusCollector registers the collectors on reg; pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		framesCaptured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmpscout_frames_captured_total",
			Help: "TCP payload frames delivered by the capture backend",
		}, []string{"backend"}),

		framesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtmpscout_frames_duplicate_total",
			Help: "Frames dropped by fingerprint deduplication",
		}),

		urlsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtmpscout_urls_discovered_total",
			Help: "Distinct RTMP URLs recorded",
		}),

		commandsDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmpscout_commands_discovered_total",
			Help: "Stream commands recorded",
		}, []string{"kind"}),

		appliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmpscout_apply_total",
			Help: "Stream settings pushes to OBS by result",
		}, []string{"result"}),

		applyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtmpscout_apply_duration_seconds",
			Help:    "Duration of stream settings pushes",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		obsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtmpscout_obs_connected",
			Help: "1 when the OBS websocket is connected",
		}),

		captureRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtmpscout_capture_running",
			Help: "1 while a capture loop is running",
		}),
	}
}

var _ ports.Metrics = (*PrometheusCollector)(nil)

func (c *PrometheusCollector) FrameCaptured(backend domain.CaptureBackend) {
	c.framesCaptured.WithLabelValues(string(backend)).Inc()
}

func (c *PrometheusCollector) FrameDuplicate() {
	c.framesDuplicate.Inc()
}

func (c *PrometheusCollector) URLDiscovered() {
	c.urlsDiscovered.Inc()
}

func (c *PrometheusCollector) CommandDiscovered(kind domain.CommandKind) {
	c.commandsDiscovered.WithLabelValues(string(kind)).Inc()
}

func (c *PrometheusCollector) ApplyFinished(err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.appliesTotal.WithLabelValues(result).Inc()
	c.applyDuration.Observe(elapsed.Seconds())
}

func (c *PrometheusCollector) SetCaptureRunning(running bool) {
	c.captureRunning.Set(boolGauge(running))
}

func (c *PrometheusCollector) SetControlConnected(connected bool) {
	c.obsConnected.Set(boolGauge(connected))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
