package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/utils"
)

// DisplayDelta is what appeared in the result store since the previous poll.
type DisplayDelta struct {
	URLs       []string
	StreamKeys []string
}

func (d DisplayDelta) Empty() bool {
	return len(d.URLs) == 0 && len(d.StreamKeys) == 0
}

// DisplaySink consumes display deltas.
type DisplaySink interface {
	Show(delta DisplayDelta)
}

// Ticker is the per-poll hook, normally the auto-apply coordinator.
type Ticker interface {
	Tick(ctx context.Context) bool
}

// Poller wakes every second, reports new results and drives the coordinator.
type Poller struct {
	source   ports.SnapshotSource
	sink     DisplaySink
	ticker   Ticker
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	shownURL map[string]struct{}
	shownKey map[string]struct{}
	recent   DisplayDelta
}

func NewPoller(source ports.SnapshotSource, sink DisplaySink, ticker Ticker, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if sink == nil {
		sink = LogDisplaySink{Logger: logger}
	}
	return &Poller{
		source:   source,
		sink:     sink,
		ticker:   ticker,
		interval: DefaultPollInterval,
		logger:   logger,
		shownURL: make(map[string]struct{}),
		shownKey: make(map[string]struct{}),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one iteration: snapshot, deltas, coordinator tick.
func (p *Poller) Poll(ctx context.Context) {
	snap := p.source.Snapshot()

	delta := p.diff(snap)
	if !delta.Empty() {
		p.sink.Show(delta)
	}

	if p.ticker != nil {
		p.ticker.Tick(ctx)
	}
}

// Forget drops the display history, used after the store is cleared.
func (p *Poller) Forget() {
	p.mu.Lock()
	p.shownURL = make(map[string]struct{})
	p.shownKey = make(map[string]struct{})
	p.recent = DisplayDelta{}
	p.mu.Unlock()
}

// Recent returns the last non-empty delta.
func (p *Poller) Recent() DisplayDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recent
}

func (p *Poller) diff(snap domain.Snapshot) DisplayDelta {
	p.mu.Lock()
	defer p.mu.Unlock()

	var delta DisplayDelta
	for _, u := range snap.URLs {
		if !strings.Contains(u, "rtmp://") {
			continue
		}
		if _, ok := p.shownURL[u]; ok {
			continue
		}
		p.shownURL[u] = struct{}{}
		delta.URLs = append(delta.URLs, u)
	}
	for _, c := range snap.Commands {
		if !strings.HasPrefix(c.StreamKey, domain.StreamKeyPrefix) {
			continue
		}
		if _, ok := p.shownKey[c.StreamKey]; ok {
			continue
		}
		p.shownKey[c.StreamKey] = struct{}{}
		delta.StreamKeys = append(delta.StreamKeys, c.StreamKey)
	}

	if !delta.Empty() {
		p.recent = delta
	}
	return delta
}

// LogDisplaySink writes deltas as structured log lines.
type LogDisplaySink struct {
	Logger *zap.SugaredLogger
}

func (s LogDisplaySink) Show(delta DisplayDelta) {
	for _, u := range delta.URLs {
		s.Logger.Infow("Server", "url", u)
	}
	for _, k := range delta.StreamKeys {
		s.Logger.Infow("Stream key", "stream_key", utils.MaskStreamKey(k))
	}
}
