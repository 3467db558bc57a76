package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rtmpscout/pkg/batch"
	"rtmpscout/pkg/circuitbreaker"
)

type opType string

const (
	opSAdd    opType = "sadd"
	opRPush   opType = "rpush"
	opPublish opType = "publish"
	opDel     opType = "del"
)

// RedisOperation is one queued mirror write.
type RedisOperation struct {
	Type   opType
	Key    string
	Value  []byte
	client redis.Cmdable
}

func (op *RedisOperation) Execute(ctx context.Context) error {
	switch op.Type {
	case opSAdd:
		return op.client.SAdd(ctx, op.Key, string(op.Value)).Err()
	case opRPush:
		return op.client.RPush(ctx, op.Key, op.Value).Err()
	case opPublish:
		return op.client.Publish(ctx, op.Key, op.Value).Err()
	case opDel:
		return op.client.Del(ctx, op.Key).Err()
	default:
		return fmt.Errorf("unknown operation type: %s", op.Type)
	}
}

// RedisBatchProcessor sends a batch through one pipeline round trip. While
// the breaker is open batches are dropped with circuitbreaker.ErrOpen.
type RedisBatchProcessor struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
}

func (p *RedisBatchProcessor) ProcessBatch(ctx context.Context, operations []batch.Operation) error {
	if len(operations) == 0 {
		return nil
	}
	if p.breaker == nil {
		return p.exec(ctx, operations)
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.exec(ctx, operations)
	})
}

func (p *RedisBatchProcessor) exec(ctx context.Context, operations []batch.Operation) error {
	pipe := p.client.Pipeline()
	for _, op := range operations {
		redisOp, ok := op.(*RedisOperation)
		if !ok {
			continue
		}
		queued := *redisOp
		queued.client = pipe
		if err := queued.Execute(ctx); err != nil {
			return err
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
