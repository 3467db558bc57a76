package monitoring

import (
	"context"
	"time"

	"rtmpscout/internal/core/domain"
)

// AddRedisCheck adds a Redis health check. ping is nil when Redis is not in use.
func (h *HealthChecker) AddRedisCheck(ping func(ctx context.Context) error, timeout time.Duration) {
	if ping == nil {
		return
	}
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout, false)
}

type captureState interface {
	Running() bool
	Err() error
}

// AddCaptureCheck fails when the last capture run ended with an error.
func (h *HealthChecker) AddCaptureCheck(source captureState) {
	h.AddCheck("capture", func(ctx context.Context) (bool, error) {
		if err := source.Err(); err != nil {
			return false, err
		}
		return true, nil
	}, time.Second, true)
}

type connectionState interface {
	IsConnected() bool
}

// AddControlCheck reports the OBS connection; a disconnect only degrades.
func (h *HealthChecker) AddControlCheck(channel connectionState) {
	h.AddCheck("obs", func(ctx context.Context) (bool, error) {
		if !channel.IsConnected() {
			return false, domain.ErrNotConnected
		}
		return true, nil
	}, time.Second, false)
}
