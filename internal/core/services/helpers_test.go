package services_test

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"rtmpscout/internal/core/domain"
)

var (
	clientEndpoint = domain.Endpoint{Addr: netip.MustParseAddr("192.168.1.20"), Port: 51000}
	serverEndpoint = domain.Endpoint{Addr: netip.MustParseAddr("203.0.113.10"), Port: 1935}
)

func frameWith(payload string) domain.Frame {
	return domain.Frame{
		Source:      clientEndpoint,
		Destination: serverEndpoint,
		Payload:     []byte(payload),
		CapturedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		WireLen:     len(payload) + 54,
	}
}

// MockControlChannel implements ports.ControlChannel.
type MockControlChannel struct {
	mock.Mock
}

func (m *MockControlChannel) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockControlChannel) ApplyStreamSettings(ctx context.Context, settings domain.StreamSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockControlChannel) StartStream(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockControlChannel) StopStream(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// snapshotStub lets a test present any (server, key) pair to the coordinator.
type snapshotStub struct {
	mu   sync.Mutex
	snap domain.Snapshot
}

func (s *snapshotStub) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *snapshotStub) present(server, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = domain.Snapshot{
		URLs:     []string{server},
		Commands: []domain.StreamCommand{{Kind: domain.CommandReleaseStream, StreamKey: key}},
		TakenAt:  time.Now(),
	}
}

func (s *snapshotStub) empty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = domain.Snapshot{}
}
