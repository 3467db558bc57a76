package ports

import (
	"context"
	"time"

	"rtmpscout/internal/core/domain"
)

// FrameHandler is invoked synchronously from the capture loop for every
// qualifying frame. Blocking it stalls capture.
type FrameHandler func(frame domain.Frame)

type FrameSource interface {
	Start(ctx context.Context, iface, filter string, handler FrameHandler) error
	Stop()
	Running() bool
	Err() error
	Interfaces() ([]domain.InterfaceDescriptor, error)
}

// ControlChannel is the broadcasting application's remote control connection.
// Its connection state is observed, not owned, by the coordinator.
type ControlChannel interface {
	IsConnected() bool
	ApplyStreamSettings(ctx context.Context, settings domain.StreamSettings) error
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
}

type Extractor interface {
	Extract(frame domain.NormalizedFrame) []domain.Discovery
}

// Metrics receives pipeline and apply events. Implementations must be safe
// for concurrent use.
type Metrics interface {
	FrameCaptured(backend domain.CaptureBackend)
	FrameDuplicate()
	URLDiscovered()
	CommandDiscovered(kind domain.CommandKind)
	ApplyFinished(err error, elapsed time.Duration)
	SetCaptureRunning(running bool)
	SetControlConnected(connected bool)
}

// ApplyCoordinator is the operator-facing side of the auto-apply coordinator.
type ApplyCoordinator interface {
	ApplyNow(ctx context.Context) (domain.StreamSettings, error)
	SetEnabled(enabled bool)
	Enabled() bool
	State() domain.AppliedState
	Reset()
}

// FramePipeline turns captured frames into store records.
type FramePipeline interface {
	Handler() FrameHandler
	// Reset prepares for a new capture run and drops earlier results.
	Reset()
}

type StatsSource interface {
	Stats() domain.CaptureStats
}
