package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordOp struct {
	id int
}

func (recordOp) Execute(context.Context) error { return nil }

type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]Operation
	err     error
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, ops []Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, ops)
	return p.err
}

func (p *recordingProcessor) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(3, time.Hour, proc)
	defer b.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Add(recordOp{id: i}))
	}

	require.Eventually(t, func() bool { return proc.total() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, b.PendingCount())
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, 20*time.Millisecond, proc)
	defer b.Stop()

	require.NoError(t, b.Add(recordOp{id: 1}))
	require.Eventually(t, func() bool { return proc.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesPending(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, time.Hour, proc)

	require.NoError(t, b.Add(recordOp{id: 1}))
	require.NoError(t, b.Add(recordOp{id: 2}))
	b.Stop()

	assert.Equal(t, 2, proc.total())
	b.Stop()
}

func TestBatcher_ReportsBackgroundErrors(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("pipeline failed")}
	reported := make(chan int, 1)
	b := NewBatcher(1, time.Hour, proc, WithErrorHandler(func(err error, size int) {
		reported <- size
	}))
	defer b.Stop()

	require.NoError(t, b.Add(recordOp{id: 1}))

	select {
	case size := <-reported:
		assert.Equal(t, 1, size)
	case <-time.After(time.Second):
		t.Fatal("flush error was not reported")
	}
}

func TestBatcher_Discard(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, time.Hour, proc)

	require.NoError(t, b.Add(recordOp{id: 1}))
	assert.Equal(t, 1, b.Discard())
	b.Stop()

	assert.Equal(t, 0, proc.total())
}

func TestBatcher_ExplicitFlush(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, time.Hour, proc)
	defer b.Stop()

	require.NoError(t, b.Add(recordOp{id: 1}))
	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 1, proc.total())
	assert.NoError(t, b.Flush(context.Background()))
}
