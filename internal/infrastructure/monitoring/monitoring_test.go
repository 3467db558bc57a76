package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"rtmpscout/internal/core/domain"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.FrameCaptured(domain.BackendPcap)
	c.FrameCaptured(domain.BackendPcap)
	c.FrameCaptured(domain.BackendRawSocket)
	c.FrameDuplicate()
	c.URLDiscovered()
	c.CommandDiscovered(domain.CommandReleaseStream)
	c.ApplyFinished(nil, 20*time.Millisecond)
	c.ApplyFinished(errors.New("timeout"), time.Second)
	c.SetControlConnected(true)
	c.SetCaptureRunning(true)
	c.SetCaptureRunning(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesCaptured.WithLabelValues("pcap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesCaptured.WithLabelValues("rawsocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.urlsDiscovered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsDiscovered.WithLabelValues("releaseStream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.appliesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.appliesTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.obsConnected))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.captureRunning))
	assert.Equal(t, 2, testutil.CollectAndCount(c.applyDuration))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}

type stubCapture struct {
	running bool
	err     error
}

func (s stubCapture) Running() bool { return s.running }
func (s stubCapture) Err() error    { return s.err }

type stubChannel bool

func (s stubChannel) IsConnected() bool { return bool(s) }

func TestHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthChecker()
		h.AddCaptureCheck(stubCapture{running: true})
		h.AddControlCheck(stubChannel(true))

		status := h.CheckAll(ctx)
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Checks["capture"])
		assert.Equal(t, StatusHealthy, status.Checks["obs"])
		assert.True(t, h.IsReady(ctx))
	})

	t.Run("obs down degrades", func(t *testing.T) {
		h := NewHealthChecker()
		h.AddCaptureCheck(stubCapture{})
		h.AddControlCheck(stubChannel(false))

		status := h.CheckAll(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, domain.ErrNotConnected.Error(), status.Checks["obs"])
		assert.True(t, h.IsReady(ctx))
	})

	t.Run("capture failure is unhealthy", func(t *testing.T) {
		h := NewHealthChecker()
		h.AddCaptureCheck(stubCapture{err: domain.ErrCaptureInit})
		h.AddControlCheck(stubChannel(false))

		status := h.CheckAll(ctx)
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.False(t, h.IsReady(ctx))
	})

	t.Run("redis skipped when unused", func(t *testing.T) {
		h := NewHealthChecker()
		h.AddRedisCheck(nil, time.Second)
		assert.Empty(t, h.CheckAll(ctx).Checks)
	})

	t.Run("redis failure", func(t *testing.T) {
		h := NewHealthChecker()
		h.AddRedisCheck(func(context.Context) error { return errors.New("connection refused") }, time.Second)

		status := h.CheckAll(ctx)
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, "connection refused", status.Checks["redis"])
	})
}
