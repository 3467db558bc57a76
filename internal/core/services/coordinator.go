package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/tracing"
	"rtmpscout/pkg/utils"
)

const (
	// DefaultPollInterval is the fixed evaluation period of the poll loop.
	DefaultPollInterval = time.Second
	DefaultApplyTimeout = 5 * time.Second
)

type CoordinatorConfig struct {
	Enabled      bool
	ApplyTimeout time.Duration
}

// StatusFunc receives apply progress. It is called from the apply goroutine
// and must not block.
type StatusFunc func(phase domain.ApplyPhase, settings domain.StreamSettings, err error)

// AutoApplyCoordinator pushes the first discovered (server, key) pair to the
// control channel, once per distinct pair. At most one push is in flight.
type AutoApplyCoordinator struct {
	source  ports.SnapshotSource
	channel ports.ControlChannel
	metrics ports.Metrics
	logger  *zap.SugaredLogger

	applyTimeout time.Duration

	enabled  atomic.Bool
	inFlight atomic.Bool

	mu         sync.Mutex
	applied    domain.AppliedState
	generation uint64
	onStatus   []StatusFunc

	wg sync.WaitGroup
}

func NewAutoApplyCoordinator(
	source ports.SnapshotSource,
	channel ports.ControlChannel,
	cfg CoordinatorConfig,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *AutoApplyCoordinator {
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = DefaultApplyTimeout
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &AutoApplyCoordinator{
		source:       source,
		channel:      channel,
		metrics:      metrics,
		logger:       logger,
		applyTimeout: cfg.ApplyTimeout,
	}
	c.enabled.Store(cfg.Enabled)
	return c
}

func (c *AutoApplyCoordinator) SetEnabled(enabled bool) {
	if c.enabled.Swap(enabled) != enabled {
		c.logger.Infow("Auto-apply toggled", "enabled", enabled)
	}
}

func (c *AutoApplyCoordinator) Enabled() bool {
	return c.enabled.Load()
}

// OnStatus registers a listener for apply progress.
func (c *AutoApplyCoordinator) OnStatus(fn StatusFunc) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

// State returns the last successfully applied pair and whether a push is
// running. Empty fields mean nothing has been applied.
func (c *AutoApplyCoordinator) State() domain.AppliedState {
	c.mu.Lock()
	state := c.applied
	c.mu.Unlock()

	state.InFlight = c.inFlight.Load()
	return state
}

// Reset forgets the applied pair so the same pair can be pushed again. A
// push that is still running when Reset is called does not record its pair.
func (c *AutoApplyCoordinator) Reset() {
	c.mu.Lock()
	c.applied = domain.AppliedState{}
	c.generation++
	c.mu.Unlock()
	c.logger.Infow("Applied stream settings reset")
}

// Tick evaluates the current snapshot once and starts a background push when
// a new complete pair is available. It never blocks on the control channel.
func (c *AutoApplyCoordinator) Tick(ctx context.Context) bool {
	if !c.enabled.Load() || !c.channel.IsConnected() || c.inFlight.Load() {
		return false
	}

	settings, ok := c.pending()
	if !ok {
		return false
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}

	gen := c.currentGeneration()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.apply(ctx, settings, gen, domain.TriggerAuto)
	}()
	return true
}

// ApplyNow pushes the current pair synchronously, regardless of whether it
// was applied before or auto-apply is enabled.
func (c *AutoApplyCoordinator) ApplyNow(ctx context.Context) (domain.StreamSettings, error) {
	if !c.channel.IsConnected() {
		return domain.StreamSettings{}, domain.ErrNotConnected
	}

	settings := latestSettings(c.source.Snapshot())
	if !settings.Complete() {
		return domain.StreamSettings{}, domain.ErrNoStreamSettings
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return settings, domain.ErrApplyInFlight
	}

	c.wg.Add(1)
	defer c.wg.Done()
	return settings, c.apply(ctx, settings, c.currentGeneration(), domain.TriggerManual)
}

// Wait blocks until every started push has finished.
func (c *AutoApplyCoordinator) Wait() {
	c.wg.Wait()
}

func (c *AutoApplyCoordinator) pending() (domain.StreamSettings, bool) {
	snap := c.source.Snapshot()
	if snap.Empty() {
		return domain.StreamSettings{}, false
	}

	settings := latestSettings(snap)
	if !settings.Complete() {
		return domain.StreamSettings{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied.Matches(settings) {
		return domain.StreamSettings{}, false
	}
	return settings, true
}

func latestSettings(snap domain.Snapshot) domain.StreamSettings {
	server, _ := snap.LatestServer()
	key, _ := snap.LatestKey()
	return domain.StreamSettings{Server: server, Key: key}
}

func (c *AutoApplyCoordinator) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// apply must be entered with inFlight set; it clears it on return.
func (c *AutoApplyCoordinator) apply(parent context.Context, settings domain.StreamSettings, gen uint64, trigger domain.ApplyTrigger) error {
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(parent, c.applyTimeout)
	defer cancel()

	ctx, span := tracing.TraceApply(ctx, string(trigger), settings.Server)
	defer span.End()

	c.notify(domain.ApplyStarted, settings, nil)
	c.logger.Infow("Applying stream settings",
		"trigger", string(trigger),
		"server", settings.Server,
		"stream_key", utils.MaskStreamKey(settings.Key),
	)

	start := time.Now()
	err := c.channel.ApplyStreamSettings(ctx, settings)
	elapsed := time.Since(start)
	tracing.MeasureDuration(ctx, start, "apply")
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil && !errors.Is(err, domain.ErrApplyFailed) {
		err = fmt.Errorf("%w: %w", domain.ErrApplyFailed, err)
	}
	c.metrics.ApplyFinished(err, elapsed)

	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Warnw("Failed to apply stream settings",
			"trigger", string(trigger),
			"server", settings.Server,
			"duration", utils.FormatDuration(elapsed),
			"error", err,
		)
		c.notify(domain.ApplyFailed, settings, err)
		return err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.applied = domain.AppliedState{Server: settings.Server, Key: settings.Key}
	}
	c.mu.Unlock()

	c.logger.Infow("Stream settings applied",
		"trigger", string(trigger),
		"server", settings.Server,
		"duration", utils.FormatDuration(elapsed),
	)
	c.notify(domain.ApplySucceeded, settings, nil)
	return nil
}

func (c *AutoApplyCoordinator) notify(phase domain.ApplyPhase, settings domain.StreamSettings, err error) {
	c.mu.Lock()
	listeners := append([]StatusFunc(nil), c.onStatus...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(phase, settings, err)
	}
}
