package memory

import (
	"sync"
	"time"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

// MemoryResultStore keeps discovered URLs (unique, in discovery order) and
// stream commands (every arrival) for the lifetime of the process.
type MemoryResultStore struct {
	mu       sync.RWMutex
	urls     []domain.URLRecord
	urlIndex map[string]struct{}
	commands []domain.StreamCommand
	onClear  []func()
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		urlIndex: make(map[string]struct{}),
	}
}

var _ ports.ResultStore = (*MemoryResultStore)(nil)

// RecordURL stores the record unless its URL is already known and reports
// whether it was new.
func (s *MemoryResultStore) RecordURL(record domain.URLRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.urlIndex[record.URL]; exists {
		return false
	}
	s.urlIndex[record.URL] = struct{}{}
	s.urls = append(s.urls, record)
	return true
}

func (s *MemoryResultStore) RecordCommand(cmd domain.StreamCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, cmd)
}

func (s *MemoryResultStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		URLs:       make([]string, len(s.urls)),
		URLRecords: make([]domain.URLRecord, len(s.urls)),
		Commands:   make([]domain.StreamCommand, len(s.commands)),
		TakenAt:    time.Now(),
	}
	for i, r := range s.urls {
		snap.URLs[i] = r.URL
	}
	copy(snap.URLRecords, s.urls)
	copy(snap.Commands, s.commands)
	return snap
}

// Clear empties the store, then runs the registered clear hooks outside the lock.
func (s *MemoryResultStore) Clear() {
	s.mu.Lock()
	s.urls = nil
	s.urlIndex = make(map[string]struct{})
	s.commands = nil
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// OnClear registers fn to run after every Clear.
func (s *MemoryResultStore) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onClear = append(s.onClear, fn)
}
