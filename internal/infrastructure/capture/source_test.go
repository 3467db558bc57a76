package capture_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/internal/core/services"
	"rtmpscout/internal/infrastructure/capture"
	"rtmpscout/pkg/tracing"
)

type fakeReader struct {
	backend domain.CaptureBackend
	frames  []domain.Frame
	failErr error
	// release, when set, makes the reader ignore ctx until closed
	release  chan struct{}
	returned atomic.Bool
	closed   atomic.Bool
}

func (r *fakeReader) Backend() domain.CaptureBackend { return r.backend }

func (r *fakeReader) ReadFrames(ctx context.Context, emit ports.FrameHandler) error {
	defer r.returned.Store(true)
	for _, f := range r.frames {
		emit(f)
	}
	if r.failErr != nil {
		return r.failErr
	}
	if r.release != nil {
		<-r.release
		return nil
	}
	<-ctx.Done()
	return nil
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func openerFor(r *fakeReader) capture.Opener {
	return func(string, string) (capture.Reader, error) { return r, nil }
}

func failingOpener(err error) capture.Opener {
	return func(string, string) (capture.Reader, error) { return nil, err }
}

type frameSink struct {
	mu     sync.Mutex
	frames []domain.Frame
}

func (s *frameSink) handle(f domain.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func testFrame(port uint16) domain.Frame {
	return domain.Frame{
		Source:      domain.Endpoint{Addr: netip.MustParseAddr("10.0.0.2"), Port: port},
		Destination: domain.Endpoint{Addr: netip.MustParseAddr("10.0.0.9"), Port: 1935},
		Payload:     []byte("connect"),
		WireLen:     61,
	}
}

func newSource(primary, fallback capture.Opener, metrics ports.Metrics) *capture.Source {
	cfg := capture.DefaultConfig()
	cfg.StopTimeout = 200 * time.Millisecond
	return capture.NewSource(cfg, metrics, nil, capture.WithBackends(primary, fallback))
}

func TestSource_PrimaryBackend(t *testing.T) {
	primary := &fakeReader{backend: domain.BackendPcap, frames: []domain.Frame{testFrame(1), testFrame(2)}}
	fallback := &fakeReader{backend: domain.BackendRawSocket}
	metrics := services.NewMetricsService(nil)
	src := newSource(openerFor(primary), openerFor(fallback), metrics)
	sink := &frameSink{}

	require.NoError(t, src.Start(context.Background(), "eth0", "tcp port 1935", sink.handle))
	assert.True(t, src.Running())
	assert.True(t, metrics.Stats().CaptureRunning)

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), metrics.Stats().FramesSeen)

	src.Stop()
	assert.False(t, src.Running())
	assert.NoError(t, src.Err())
	assert.True(t, primary.closed.Load())
	assert.False(t, fallback.returned.Load())
	assert.False(t, metrics.Stats().CaptureRunning)
}

func TestSource_FallsBackWhenPrimaryCannotOpen(t *testing.T) {
	fallback := &fakeReader{backend: domain.BackendRawSocket, frames: []domain.Frame{testFrame(1)}}
	src := newSource(failingOpener(errors.New("no libpcap")), openerFor(fallback), nil)
	sink := &frameSink{}

	require.NoError(t, src.Start(context.Background(), domain.AllInterfaces, "", sink.handle))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	src.Stop()
	assert.True(t, fallback.closed.Load())
}

func TestSource_BothBackendsUnavailable(t *testing.T) {
	src := newSource(failingOpener(errors.New("no libpcap")), failingOpener(errors.New("permission denied")), nil)

	err := src.Start(context.Background(), "eth0", "", func(domain.Frame) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCaptureInit)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, src.Running())
	assert.ErrorIs(t, src.Err(), domain.ErrCaptureInit)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestSource_StartSpanRecordsOpenFailure(t *testing.T) {
	recorder := recordSpans(t)
	src := newSource(failingOpener(errors.New("no libpcap")), failingOpener(errors.New("permission denied")), nil)

	require.Error(t, src.Start(context.Background(), "eth0", "", func(domain.Frame) {}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "capture.start", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSource_StartSpanCarriesBackend(t *testing.T) {
	recorder := recordSpans(t)
	fallback := &fakeReader{backend: domain.BackendRawSocket}
	src := newSource(failingOpener(errors.New("no libpcap")), openerFor(fallback), nil)

	require.NoError(t, src.Start(context.Background(), "eth0", "", func(domain.Frame) {}))
	src.Stop()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var backend string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == tracing.BackendKey {
			backend = kv.Value.AsString()
		}
	}
	assert.Equal(t, string(domain.BackendRawSocket), backend)
}

func TestSource_FallsBackOnceAfterRuntimeFailure(t *testing.T) {
	primary := &fakeReader{backend: domain.BackendPcap, frames: []domain.Frame{testFrame(1)}, failErr: errors.New("device went away")}
	fallback := &fakeReader{backend: domain.BackendRawSocket, frames: []domain.Frame{testFrame(2)}}
	metrics := services.NewMetricsService(nil)
	src := newSource(openerFor(primary), openerFor(fallback), metrics)
	sink := &frameSink{}

	require.NoError(t, src.Start(context.Background(), "eth0", "", sink.handle))
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, src.Running())
	assert.True(t, primary.closed.Load())

	src.Stop()
	assert.NoError(t, src.Err())
	assert.Equal(t, uint64(2), metrics.Stats().FramesSeen)
}

func TestSource_RuntimeFailureWithoutFallbackReportsError(t *testing.T) {
	primary := &fakeReader{backend: domain.BackendPcap, failErr: errors.New("device went away")}
	calls := 0
	fallbackOpener := func(string, string) (capture.Reader, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("permission denied")
		}
		return &fakeReader{backend: domain.BackendRawSocket}, nil
	}
	src := newSource(openerFor(primary), fallbackOpener, nil)

	reported := make(chan error, 1)
	src.OnError(func(err error) { reported <- err })

	require.NoError(t, src.Start(context.Background(), "eth0", "", func(domain.Frame) {}))

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, domain.ErrCaptureInit)
	case <-time.After(time.Second):
		t.Fatal("capture error was not reported")
	}

	require.Eventually(t, func() bool { return !src.Running() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, src.Err(), domain.ErrCaptureInit)
	assert.Equal(t, 1, calls)
}

func TestSource_StartWhileRunning(t *testing.T) {
	primary := &fakeReader{backend: domain.BackendPcap}
	src := newSource(openerFor(primary), failingOpener(errors.New("unused")), nil)

	require.NoError(t, src.Start(context.Background(), "eth0", "", func(domain.Frame) {}))
	defer src.Stop()

	err := src.Start(context.Background(), "eth0", "", func(domain.Frame) {})
	assert.ErrorIs(t, err, domain.ErrCaptureRunning)
}

func TestSource_CallerContextDoesNotStopCapture(t *testing.T) {
	primary := &fakeReader{backend: domain.BackendPcap}
	src := newSource(openerFor(primary), failingOpener(errors.New("unused")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx, "eth0", "", func(domain.Frame) {}))
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, src.Running())

	src.Stop()
	assert.False(t, src.Running())
}

func TestSource_StopIsBounded(t *testing.T) {
	stuck := &fakeReader{backend: domain.BackendPcap, release: make(chan struct{})}
	src := newSource(openerFor(stuck), failingOpener(errors.New("unused")), nil)

	require.NoError(t, src.Start(context.Background(), "eth0", "", func(domain.Frame) {}))

	start := time.Now()
	src.Stop()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, src.Running())

	close(stuck.release)
	require.Eventually(t, stuck.returned.Load, time.Second, 5*time.Millisecond)
	require.Eventually(t, stuck.closed.Load, time.Second, 5*time.Millisecond)
}

func TestSource_StopWhenIdle(t *testing.T) {
	src := newSource(failingOpener(errors.New("unused")), failingOpener(errors.New("unused")), nil)
	src.Stop()
	assert.False(t, src.Running())
}

func TestSource_Interfaces(t *testing.T) {
	want := []domain.InterfaceDescriptor{{Name: "eth0", Addresses: []string{"10.0.0.2/24"}}}
	src := capture.NewSource(capture.DefaultConfig(), nil, nil,
		capture.WithInterfaceLister(func() ([]domain.InterfaceDescriptor, error) { return want, nil }),
	)

	got, err := src.Interfaces()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSource_WaitForFiniteRun(t *testing.T) {
	replay := &fakeReader{backend: domain.BackendReplay, frames: []domain.Frame{testFrame(1)}, release: make(chan struct{})}
	close(replay.release)
	src := capture.NewSource(capture.DefaultConfig(), nil, nil,
		capture.WithBackends(openerFor(replay), nil),
		capture.WithoutFallback(),
	)
	sink := &frameSink{}

	require.NoError(t, src.Start(context.Background(), "", "", sink.handle))
	require.NoError(t, src.Wait(context.Background()))

	assert.Equal(t, 1, sink.count())
	assert.False(t, src.Running())
	assert.NoError(t, src.Err())
}

func TestSource_WithoutFallback(t *testing.T) {
	src := capture.NewSource(capture.DefaultConfig(), nil, nil,
		capture.WithBackends(failingOpener(errors.New("no such file")), nil),
		capture.WithoutFallback(),
	)

	err := src.Start(context.Background(), "", "", func(domain.Frame) {})
	assert.ErrorIs(t, err, domain.ErrCaptureInit)
	assert.NoError(t, src.Wait(context.Background()))
}
