package ports

import (
	"context"

	"rtmpscout/internal/core/domain"
)

// ResultStore holds everything the capture path has discovered. One writer
// (capture) and any number of readers (poller, API, export) may use it
// concurrently.
type ResultStore interface {
	RecordURL(record domain.URLRecord) bool
	RecordCommand(cmd domain.StreamCommand)
	Snapshot() domain.Snapshot
	Clear()
	OnClear(fn func())
}

// SnapshotSource is the read-only view the coordinator and poller need.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// ResultMirror receives a copy of every new discovery for consumers outside
// the process.
type ResultMirror interface {
	MirrorURL(ctx context.Context, record domain.URLRecord) error
	MirrorCommand(ctx context.Context, cmd domain.StreamCommand) error
	Clear(ctx context.Context) error
}
