package redis

import (
	"context"
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtmpscout/internal/core/domain"
	"rtmpscout/pkg/batch"
	"rtmpscout/pkg/circuitbreaker"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleCommand() domain.StreamCommand {
	return domain.StreamCommand{
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:      domain.Endpoint{Addr: netip.MustParseAddr("192.168.1.20"), Port: 51234},
		Destination: domain.Endpoint{Addr: netip.MustParseAddr("203.0.113.7"), Port: 1935},
		Kind:        domain.CommandReleaseStream,
		StreamKey:   "stream-live_123?auth=abc",
		FrameSize:   142,
	}
}

func TestNewCommandRecord(t *testing.T) {
	rec := NewCommandRecord(sampleCommand())

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "192.168.1.20:51234", decoded["src"])
	assert.Equal(t, "203.0.113.7:1935", decoded["dst"])
	assert.Equal(t, "releaseStream", decoded["command"])
	assert.Equal(t, "stream-live_123?auth=abc", decoded["stream_key"])
	assert.Equal(t, float64(142), decoded["packet_size"])
}

func TestEncodeEvent(t *testing.T) {
	data, err := EncodeEvent(EventURLDiscovered, "node-1", URLRecord{URL: "rtmp://live.example.com/app/key"})
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, EventURLDiscovered, event.Type)
	assert.Equal(t, "node-1", event.InstanceID)
	assert.False(t, event.Timestamp.IsZero())

	var payload URLRecord
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "rtmp://live.example.com/app/key", payload.URL)
}

func TestEncodeEvent_NoPayload(t *testing.T) {
	data, err := EncodeEvent(EventResultsCleared, "node-1", nil)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload")
}

func TestRedisOperation_UnknownType(t *testing.T) {
	op := &RedisOperation{Type: "hset", Key: "k", client: unreachableClient(t)}
	err := op.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation type")
}

func TestRedisBatchProcessor_Empty(t *testing.T) {
	p := &RedisBatchProcessor{client: unreachableClient(t)}
	assert.NoError(t, p.ProcessBatch(context.Background(), nil))
}

func TestRedisBatchProcessor_Unreachable(t *testing.T) {
	p := &RedisBatchProcessor{client: unreachableClient(t)}
	ops := []batch.Operation{&RedisOperation{Type: opSAdd, Key: urlsKey, Value: []byte("rtmp://live.example.com/app/key")}}

	assert.Error(t, p.ProcessBatch(context.Background(), ops))
}

func TestRedisBatchProcessor_BreakerOpens(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute})
	p := &RedisBatchProcessor{client: unreachableClient(t), breaker: breaker}
	ops := []batch.Operation{&RedisOperation{Type: opRPush, Key: commandsKey, Value: []byte("{}")}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := p.ProcessBatch(ctx, ops)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.ErrorIs(t, p.ProcessBatch(ctx, ops), circuitbreaker.ErrOpen)
}

func TestRedisResultMirror_QueuesAndClears(t *testing.T) {
	mirror := NewRedisResultMirror(unreachableClient(t), "node-1", nil)

	ctx := context.Background()
	require.NoError(t, mirror.MirrorCommand(ctx, sampleCommand()))
	require.NoError(t, mirror.MirrorURL(ctx, domain.URLRecord{URL: "rtmp://live.example.com/app/key"}))

	err := mirror.Clear(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear mirrored results")
	assert.Equal(t, 0, mirror.batcher.PendingCount())

	assert.NoError(t, mirror.Close())
}
