package batch

import (
	"context"
	"sync"
	"time"
)

// Batcher collects operations and hands them to a Processor when the batch
// is full or the interval elapses, whichever comes first.
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	flushTimeout  time.Duration
	onError       func(err error, size int)

	mu        sync.Mutex
	pending   []Operation
	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	processor Processor
}

// Operation represents a single operation to be batched
type Operation interface {
	Execute(ctx context.Context) error
}

// Processor processes a batch of operations
type Processor interface {
	ProcessBatch(ctx context.Context, operations []Operation) error
}

type Option func(*Batcher)

// WithErrorHandler is called with every failed background flush.
func WithErrorHandler(fn func(err error, size int)) Option {
	return func(b *Batcher) {
		b.onError = fn
	}
}

// WithFlushTimeout bounds each background flush.
func WithFlushTimeout(d time.Duration) Option {
	return func(b *Batcher) {
		b.flushTimeout = d
	}
}

// NewBatcher creates a batcher and starts its flush loop. Stop must be called.
func NewBatcher(batchSize int, batchInterval time.Duration, processor Processor, opts ...Option) *Batcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	b := &Batcher{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		flushTimeout:  5 * time.Second,
		pending:       make([]Operation, 0, batchSize),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		processor:     processor,
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()

	return b
}

// Add queues an operation and wakes the loop when the batch is full.
func (b *Batcher) Add(op Operation) error {
	b.mu.Lock()
	b.pending = append(b.pending, op)
	shouldFlush := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}

	return nil
}

// Flush immediately processes all pending operations
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}

	ops := make([]Operation, len(b.pending))
	copy(ops, b.pending)
	b.pending = b.pending[:0]
	b.mu.Unlock()

	return b.processor.ProcessBatch(ctx, ops)
}

// Discard drops pending operations without processing them.
func (b *Batcher) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	b.pending = b.pending[:0]
	return n
}

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.backgroundFlush()
		case <-b.flushChan:
			b.backgroundFlush()
		case <-b.stopChan:
			b.backgroundFlush()
			return
		}
	}
}

func (b *Batcher) backgroundFlush() {
	size := b.PendingCount()
	if size == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	defer cancel()

	if err := b.Flush(ctx); err != nil && b.onError != nil {
		b.onError(err, size)
	}
}

// Stop flushes what is pending and waits for the loop to exit.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	<-b.done
}

// PendingCount returns the number of pending operations
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
