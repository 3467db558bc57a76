package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/tracing"
	"rtmpscout/pkg/utils"
)

// Reader is one opened capture backend.
type Reader interface {
	Backend() domain.CaptureBackend
	// ReadFrames blocks, emitting qualifying frames, until ctx is done (nil)
	// or the backend fails (non-nil).
	ReadFrames(ctx context.Context, emit ports.FrameHandler) error
	Close() error
}

// Opener opens a backend on an interface ("" = all) with a filter expression.
type Opener func(iface, filter string) (Reader, error)

type Config struct {
	SnapLen     int
	Promiscuous bool
	ReadTimeout time.Duration
	StopTimeout time.Duration
	// Ports is the fallback backend's allow-list; the filter string is only
	// understood by the primary backend.
	Ports []uint16
}

func DefaultConfig() Config {
	return Config{
		SnapLen:     65535,
		Promiscuous: true,
		ReadTimeout: 500 * time.Millisecond,
		StopTimeout: 2 * time.Second,
		Ports:       []uint16{1935, 443, 80},
	}
}

// Source runs one capture loop at a time, falling back once from the
// primary to the raw-socket backend.
type Source struct {
	cfg      Config
	primary  Opener
	fallback Opener
	lister   func() ([]domain.InterfaceDescriptor, error)
	metrics  ports.Metrics
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   error
	sessionID string
	onError   []func(error)
}

type Option func(*Source)

var errNoFallback = errors.New("no fallback backend")

// WithBackends replaces the pcap and raw-socket openers.
func WithBackends(primary, fallback Opener) Option {
	return func(s *Source) {
		s.primary = primary
		s.fallback = fallback
	}
}

// WithoutFallback makes a failing primary backend final.
func WithoutFallback() Option {
	return func(s *Source) {
		s.fallback = func(string, string) (Reader, error) {
			return nil, errNoFallback
		}
	}
}

// WithInterfaceLister replaces interface discovery.
func WithInterfaceLister(fn func() ([]domain.InterfaceDescriptor, error)) Option {
	return func(s *Source) {
		s.lister = fn
	}
}

func NewSource(cfg Config, metrics ports.Metrics, logger *zap.SugaredLogger, opts ...Option) *Source {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Source{
		cfg:      cfg,
		primary:  PcapOpener(cfg),
		fallback: RawSocketOpener(cfg),
		lister:   ListInterfaces,
		metrics:  metrics,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.FrameSource = (*Source)(nil)

// OnError registers fn to be called when a capture run ends with an error.
func (s *Source) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = append(s.onError, fn)
	s.mu.Unlock()
}

// Start opens a backend and runs the receive loop on its own goroutine.
// handler is called synchronously for every frame.
func (s *Source) Start(ctx context.Context, iface, filter string, handler ports.FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrCaptureRunning
	}

	sessionID := utils.GenerateSessionID()
	spanCtx, span := tracing.TraceCaptureStart(ctx, sessionID, iface)
	defer span.End()

	reader, usedFallback, err := s.open(iface, filter)
	if err != nil {
		tracing.RecordError(spanCtx, err)
		s.lastErr = err
		return err
	}

	// the run outlives the caller's ctx (often an HTTP request); Stop ends it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil
	s.sessionID = sessionID
	s.setRunningMetric(true)
	tracing.AddSpanAttributes(spanCtx, tracing.BackendKey.String(string(reader.Backend())))

	s.logger.Infow("Capture started",
		"session_id", sessionID,
		"interface", displayInterface(iface),
		"filter", filter,
		"backend", string(reader.Backend()),
	)

	go s.loop(runCtx, reader, usedFallback, iface, filter, handler, s.done)
	return nil
}

// Stop cancels the loop and waits up to StopTimeout for it to exit. A loop
// stuck in a blocking read is abandoned, not killed.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done, sessionID := s.cancel, s.done, s.sessionID
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		s.logger.Infow("Capture stopped", "session_id", sessionID)
	case <-time.After(s.cfg.StopTimeout):
		s.logger.Warnw("Capture loop did not exit in time, abandoning it",
			"session_id", sessionID,
			"timeout", utils.FormatDuration(s.cfg.StopTimeout),
		)
		s.mu.Lock()
		if s.done == done {
			s.running = false
			s.setRunningMetric(false)
		}
		s.mu.Unlock()
	}
}

func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Err returns the terminal error of the last run, nil after a clean stop.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Wait blocks until the current run ends and returns its error.
func (s *Source) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interfaces lists capture-capable interfaces.
func (s *Source) Interfaces() ([]domain.InterfaceDescriptor, error) {
	return s.lister()
}

func (s *Source) open(iface, filter string) (Reader, bool, error) {
	reader, primaryErr := s.primary(iface, filter)
	if primaryErr == nil {
		return reader, false, nil
	}
	s.logger.Warnw("Primary capture backend unavailable, falling back to raw socket",
		"interface", displayInterface(iface),
		"error", primaryErr,
	)

	reader, fallbackErr := s.fallback(iface, filter)
	if fallbackErr == nil {
		return reader, true, nil
	}
	s.logger.Errorw("Raw socket capture unavailable",
		"interface", displayInterface(iface),
		"error", fallbackErr,
	)
	return nil, false, fmt.Errorf("%w: %w", domain.ErrCaptureInit, errors.Join(primaryErr, fallbackErr))
}

func (s *Source) loop(ctx context.Context, reader Reader, usedFallback bool, iface, filter string, handler ports.FrameHandler, done chan struct{}) {
	defer close(done)

	err := s.read(ctx, reader, handler)
	if err != nil && ctx.Err() == nil && !usedFallback {
		s.logger.Warnw("Primary capture backend failed, falling back to raw socket",
			"backend", string(reader.Backend()),
			"error", err,
		)
		fallbackReader, fbErr := s.fallback(iface, filter)
		if fbErr != nil {
			err = fmt.Errorf("%w: %w", domain.ErrCaptureInit, errors.Join(err, fbErr))
		} else {
			err = s.read(ctx, fallbackReader, handler)
		}
	}
	if ctx.Err() != nil {
		err = nil
	}

	s.mu.Lock()
	if s.done == done {
		s.running = false
		s.lastErr = err
		s.setRunningMetric(false)
	}
	listeners := append([]func(error){}, s.onError...)
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorw("Capture halted", "error", err)
		for _, fn := range listeners {
			fn(err)
		}
	}
}

func (s *Source) read(ctx context.Context, reader Reader, handler ports.FrameHandler) error {
	defer func() {
		if err := reader.Close(); err != nil {
			s.logger.Debugw("Failed to close capture backend", "error", err)
		}
	}()

	backend := reader.Backend()
	return reader.ReadFrames(ctx, func(frame domain.Frame) {
		if s.metrics != nil {
			s.metrics.FrameCaptured(backend)
		}
		handler(frame)
	})
}

func (s *Source) setRunningMetric(running bool) {
	if s.metrics != nil {
		s.metrics.SetCaptureRunning(running)
	}
}

func displayInterface(iface string) string {
	if iface == domain.AllInterfaces {
		return "all"
	}
	return iface
}
