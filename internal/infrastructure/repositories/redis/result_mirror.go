package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/batch"
	"rtmpscout/pkg/circuitbreaker"
)

type EventType string

const (
	EventURLDiscovered     EventType = "url.discovered"
	EventCommandDiscovered EventType = "command.discovered"
	EventResultsCleared    EventType = "results.cleared"
)

const (
	defaultBatchSize     = 16
	defaultBatchInterval = 250 * time.Millisecond

	breakerFailureThreshold = 3
	breakerOpenPeriod       = 15 * time.Second
)

// Event is published on EventsChannel for every mirrored change.
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CommandRecord is the JSON shape pushed to the commands list.
type CommandRecord struct {
	Timestamp   time.Time          `json:"timestamp"`
	Source      string             `json:"src"`
	Destination string             `json:"dst"`
	Command     domain.CommandKind `json:"command"`
	StreamKey   string             `json:"stream_key"`
	FrameSize   int                `json:"packet_size"`
}

type URLRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"src"`
	Destination string    `json:"dst"`
	URL         string    `json:"url"`
	FrameSize   int       `json:"packet_size"`
}

func NewCommandRecord(cmd domain.StreamCommand) CommandRecord {
	return CommandRecord{
		Timestamp:   cmd.Timestamp,
		Source:      cmd.Source.String(),
		Destination: cmd.Destination.String(),
		Command:     cmd.Kind,
		StreamKey:   cmd.StreamKey,
		FrameSize:   cmd.FrameSize,
	}
}

func NewURLRecord(rec domain.URLRecord) URLRecord {
	return URLRecord{
		Timestamp:   rec.Timestamp,
		Source:      rec.Source.String(),
		Destination: rec.Destination.String(),
		URL:         rec.URL,
		FrameSize:   rec.FrameSize,
	}
}

// EncodeEvent builds the pub/sub message for a change.
func EncodeEvent(eventType EventType, instanceID string, payload any) ([]byte, error) {
	event := Event{Type: eventType, InstanceID: instanceID, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		event.Payload = raw
	}
	return json.Marshal(event)
}

// RedisResultMirror copies discoveries into Redis through a pipelined batcher.
// Writes are fire-and-forget; Clear is synchronous.
type RedisResultMirror struct {
	client     *redis.Client
	batcher    *batch.Batcher
	instanceID string
	logger     *zap.SugaredLogger
}

func NewRedisResultMirror(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *RedisResultMirror {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &RedisResultMirror{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: breakerFailureThreshold,
		Timeout:          breakerOpenPeriod,
	})
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("Redis mirror circuit changed", "from", from.String(), "to", to.String())
	})

	m.batcher = batch.NewBatcher(
		defaultBatchSize,
		defaultBatchInterval,
		&RedisBatchProcessor{client: client, breaker: breaker},
		batch.WithErrorHandler(func(err error, size int) {
			if errors.Is(err, circuitbreaker.ErrOpen) {
				logger.Debugw("Redis mirror batch dropped", "operations", size)
				return
			}
			logger.Warnw("Failed to flush Redis mirror batch", "operations", size, "error", err)
		}),
	)
	return m
}

var _ ports.ResultMirror = (*RedisResultMirror)(nil)

func (m *RedisResultMirror) MirrorURL(ctx context.Context, record domain.URLRecord) error {
	event, err := EncodeEvent(EventURLDiscovered, m.instanceID, NewURLRecord(record))
	if err != nil {
		return err
	}

	if err := m.add(opSAdd, urlsKey, []byte(record.URL)); err != nil {
		return err
	}
	return m.add(opPublish, EventsChannel, event)
}

func (m *RedisResultMirror) MirrorCommand(ctx context.Context, cmd domain.StreamCommand) error {
	rec := NewCommandRecord(cmd)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	event, err := EncodeEvent(EventCommandDiscovered, m.instanceID, rec)
	if err != nil {
		return err
	}

	if err := m.add(opRPush, commandsKey, data); err != nil {
		return err
	}
	return m.add(opPublish, EventsChannel, event)
}

// Clear drops queued writes and deletes the mirrored keys.
func (m *RedisResultMirror) Clear(ctx context.Context) error {
	if n := m.batcher.Discard(); n > 0 {
		m.logger.Debugw("Discarded queued mirror writes", "operations", n)
	}

	event, err := EncodeEvent(EventResultsCleared, m.instanceID, nil)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, urlsKey, commandsKey)
	pipe.Publish(ctx, EventsChannel, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear mirrored results: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (m *RedisResultMirror) Close() error {
	m.batcher.Stop()
	return nil
}

func (m *RedisResultMirror) add(t opType, key string, value []byte) error {
	return m.batcher.Add(&RedisOperation{Type: t, Key: key, Value: value, client: m.client})
}
