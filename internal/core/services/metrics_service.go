package services

import (
	"sync"
	"time"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

// MetricsService keeps in-process counters for the status endpoint and the
// export file, and forwards every event to an optional sink (Prometheus).
type MetricsService struct {
	mu sync.RWMutex

	framesSeen       uint64
	framesDuplicate  uint64
	urlsDiscovered   uint64
	commandsFound    map[domain.CommandKind]uint64
	appliesSucceeded uint64
	appliesFailed    uint64
	lastApplyAt      time.Time
	lastApplyError   string
	captureRunning   bool
	controlConnected bool

	sink ports.Metrics
}

func NewMetricsService(sink ports.Metrics) *MetricsService {
	return &MetricsService{
		commandsFound: make(map[domain.CommandKind]uint64),
		sink:          sink,
	}
}

var _ ports.Metrics = (*MetricsService)(nil)

func (m *MetricsService) FrameCaptured(backend domain.CaptureBackend) {
	m.mu.Lock()
	m.framesSeen++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.FrameCaptured(backend)
	}
}

func (m *MetricsService) FrameDuplicate() {
	m.mu.Lock()
	m.framesDuplicate++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.FrameDuplicate()
	}
}

func (m *MetricsService) URLDiscovered() {
	m.mu.Lock()
	m.urlsDiscovered++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.URLDiscovered()
	}
}

func (m *MetricsService) CommandDiscovered(kind domain.CommandKind) {
	m.mu.Lock()
	m.commandsFound[kind]++
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.CommandDiscovered(kind)
	}
}

func (m *MetricsService) ApplyFinished(err error, elapsed time.Duration) {
	m.mu.Lock()
	m.lastApplyAt = time.Now()
	if err != nil {
		m.appliesFailed++
		m.lastApplyError = err.Error()
	} else {
		m.appliesSucceeded++
		m.lastApplyError = ""
	}
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.ApplyFinished(err, elapsed)
	}
}

func (m *MetricsService) SetCaptureRunning(running bool) {
	m.mu.Lock()
	m.captureRunning = running
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetCaptureRunning(running)
	}
}

func (m *MetricsService) SetControlConnected(connected bool) {
	m.mu.Lock()
	m.controlConnected = connected
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetControlConnected(connected)
	}
}

// Stats returns a copy of the current counters.
func (m *MetricsService) Stats() domain.CaptureStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commands := make(map[domain.CommandKind]uint64, len(m.commandsFound))
	for k, v := range m.commandsFound {
		commands[k] = v
	}

	return domain.CaptureStats{
		FramesSeen:       m.framesSeen,
		FramesDuplicate:  m.framesDuplicate,
		URLsDiscovered:   m.urlsDiscovered,
		CommandsFound:    commands,
		AppliesSucceeded: m.appliesSucceeded,
		AppliesFailed:    m.appliesFailed,
		LastApplyAt:      m.lastApplyAt,
		LastApplyError:   m.lastApplyError,
		CaptureRunning:   m.captureRunning,
		ControlConnected: m.controlConnected,
		Timestamp:        time.Now(),
	}
}

type noopMetrics struct{}

func (noopMetrics) FrameCaptured(domain.CaptureBackend) {}
func (noopMetrics) FrameDuplicate() {}
func (noopMetrics) URLDiscovered() {}
func (noopMetrics) CommandDiscovered(domain.CommandKind) {}
func (noopMetrics) ApplyFinished(error, time.Duration) {}
func (noopMetrics) SetCaptureRunning(bool) {}
func (noopMetrics) SetControlConnected(bool) {}

// NoopMetrics discards every event.
func NoopMetrics() ports.Metrics { return noopMetrics{} }
