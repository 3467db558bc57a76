package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/utils"
)

const mirrorTimeout = 500 * time.Millisecond

// CapturePipeline is the frame handler the capture loop calls: it dedups,
// extracts and records. It is the only writer to the result store.
type CapturePipeline struct {
	normalizer *FrameNormalizer
	extractor  ports.Extractor
	store      ports.ResultStore
	mirror     ports.ResultMirror
	metrics    ports.Metrics
	logger     *zap.SugaredLogger
}

func NewCapturePipeline(
	normalizer *FrameNormalizer,
	extractor ports.Extractor,
	store ports.ResultStore,
	mirror ports.ResultMirror,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *CapturePipeline {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CapturePipeline{
		normalizer: normalizer,
		extractor:  extractor,
		store:      store,
		mirror:     mirror,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handler adapts the pipeline to the capture callback signature.
func (p *CapturePipeline) Handler() ports.FrameHandler {
	return p.HandleFrame
}

func (p *CapturePipeline) HandleFrame(frame domain.Frame) {
	nf, ok := p.normalizer.Normalize(frame)
	if !ok {
		return
	}

	for _, d := range p.extractor.Extract(nf) {
		switch v := d.(type) {
		case domain.URLFound:
			p.recordURL(v)
		case domain.CommandFound:
			p.recordCommand(v.Command)
		}
	}
}

// Reset starts a new capture session: fingerprints are forgotten and the
// previous session's results are cleared, which also re-arms the coordinator
// through the store's clear hooks.
func (p *CapturePipeline) Reset() {
	p.normalizer.Reset()
	p.store.Clear()

	if p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.Clear(ctx); err != nil {
			p.logger.Warnw("Failed to clear mirrored results", "error", err)
		}
	}
}

func (p *CapturePipeline) recordURL(found domain.URLFound) {
	size := found.Frame.WireLen
	if size == 0 {
		size = len(found.Frame.Payload)
	}
	record := domain.URLRecord{
		Timestamp:   found.Frame.CapturedAt,
		Source:      found.Frame.Source,
		Destination: found.Frame.Destination,
		URL:         found.URL,
		FrameSize:   size,
	}

	if !p.store.RecordURL(record) {
		return
	}
	p.metrics.URLDiscovered()
	p.logger.Infow("RTMP URL discovered",
		"url", record.URL,
		"source", record.Source.String(),
		"destination", record.Destination.String(),
	)

	if p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.MirrorURL(ctx, record); err != nil {
			p.logger.Warnw("Failed to mirror URL", "error", err)
		}
	}
}

func (p *CapturePipeline) recordCommand(cmd domain.StreamCommand) {
	p.store.RecordCommand(cmd)
	p.metrics.CommandDiscovered(cmd.Kind)
	p.logger.Infow("RTMP stream command discovered",
		"command", string(cmd.Kind),
		"stream_key", utils.MaskStreamKey(cmd.StreamKey),
		"source", cmd.Source.String(),
	)

	if p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.MirrorCommand(ctx, cmd); err != nil {
			p.logger.Warnw("Failed to mirror stream command", "error", err)
		}
	}
}
