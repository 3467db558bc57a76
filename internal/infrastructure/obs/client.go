package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/retry"
	"rtmpscout/pkg/tracing"
	"rtmpscout/pkg/utils"
)

type Config struct {
	URL             string // ws://host:port
	Password        string
	RequestTimeout  time.Duration
	ConnectAttempts int
	PingInterval    time.Duration
}

// StatusFunc is called on connection state changes. err is non-nil when the
// connection was lost rather than closed.
type StatusFunc func(status domain.ChannelStatus, err error)

type result struct {
	resp requestResponse
	err  error
}

// Client is an obs-websocket v5 control connection.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	metrics ports.Metrics
	logger  *zap.SugaredLogger

	connected atomic.Bool

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan result
	closing  bool
	done     chan struct{}
	onStatus []StatusFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func NewClient(cfg Config, metrics ports.Metrics, logger *zap.SugaredLogger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.RequestTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

var _ ports.ControlChannel = (*Client)(nil)

// OnStatus registers a connection state listener.
func (c *Client) OnStatus(fn StatusFunc) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Connect dials and identifies, retrying transient failures. A rejected
// password is not retried.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = max(c.cfg.ConnectAttempts, 1)
	cfg.Permanent = []error{domain.ErrAuthFailed}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warnw("OBS connection attempt failed",
			"url", c.cfg.URL,
			"attempt", attempt,
			"retry_in", utils.FormatDuration(delay),
			"error", err,
		)
	}

	if err := retry.Do(ctx, cfg, c.connectOnce); err != nil {
		c.logger.Errorw("Failed to connect to OBS", "url", c.cfg.URL, "error", err)
		return err
	}
	return nil
}

func (c *Client) connectOnce(ctx context.Context) error {
	ctx, span := tracing.TraceControlRequest(ctx, "Identify")
	defer span.End()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	if err := c.identify(conn); err != nil {
		tracing.RecordError(ctx, err)
		conn.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.pending = make(map[string]chan result)
	c.closing = false
	c.done = done
	c.mu.Unlock()

	c.setConnected(true)
	c.logger.Infow("Connected to OBS", "url", c.cfg.URL)
	c.notify(domain.ChannelConnected, nil)

	c.wg.Add(1)
	go c.readLoop(conn, done)
	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn, done)
	}
	return nil
}

func (c *Client) identify(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.RequestTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if env.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", env.Op)
	}
	var hello helloMessage
	if err := json.Unmarshal(env.D, &hello); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	ident := identifyMessage{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		if c.cfg.Password == "" {
			return fmt.Errorf("%w: server requires a password", domain.ErrAuthFailed)
		}
		ident.Authentication = AuthResponse(c.cfg.Password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	if err := c.writeEnvelope(conn, opIdentify, ident); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	if err := conn.ReadJSON(&env); err != nil {
		if websocket.IsCloseError(err, closeAuthenticationFailed) {
			return fmt.Errorf("%w: %w", domain.ErrAuthFailed, err)
		}
		return fmt.Errorf("read identified: %w", err)
	}
	if env.Op != opIdentified {
		return fmt.Errorf("expected identified, got op %d", env.Op)
	}
	return nil
}

// Close ends the connection without reporting it as lost.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.closing = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := conn.Close()
	c.wg.Wait()
	return err
}

// ApplyStreamSettings pushes a custom RTMP server and key.
func (c *Client) ApplyStreamSettings(ctx context.Context, settings domain.StreamSettings) error {
	return c.SetStreamSettings(ctx, settings.Server, settings.Key)
}

func (c *Client) SetStreamSettings(ctx context.Context, server, key string) error {
	server, key = NormalizeStreamSettings(server, key)

	var data streamServiceSettings
	data.StreamServiceType = streamServiceCustom
	data.StreamServiceSettings.Server = server
	data.StreamServiceSettings.Key = key

	c.logger.Infow("Setting OBS stream settings",
		"server", server,
		"stream_key", utils.MaskStreamKey(key),
	)
	if _, err := c.request(ctx, RequestSetStreamServiceSettings, data); err != nil {
		return err
	}
	return nil
}

func (c *Client) StartStream(ctx context.Context) error {
	_, err := c.request(ctx, RequestStartStream, nil)
	return err
}

func (c *Client) StopStream(ctx context.Context) error {
	_, err := c.request(ctx, RequestStopStream, nil)
	return err
}

func (c *Client) GetStreamStatus(ctx context.Context) (StreamStatus, error) {
	resp, err := c.request(ctx, RequestGetStreamStatus, nil)
	if err != nil {
		return StreamStatus{}, err
	}
	var status StreamStatus
	if len(resp.ResponseData) > 0 {
		if err := json.Unmarshal(resp.ResponseData, &status); err != nil {
			return StreamStatus{}, fmt.Errorf("decode stream status: %w", err)
		}
	}
	return status, nil
}

func (c *Client) request(ctx context.Context, requestType string, data any) (requestResponse, error) {
	ctx, span := tracing.TraceControlRequest(ctx, requestType)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	c.mu.Lock()
	conn := c.conn
	if conn == nil || !c.connected.Load() {
		c.mu.Unlock()
		return requestResponse{}, domain.ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan result, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := requestMessage{RequestType: requestType, RequestID: id, RequestData: data}
	if err := c.writeEnvelope(conn, opRequest, msg); err != nil {
		tracing.RecordError(ctx, err)
		return requestResponse{}, fmt.Errorf("%w: %w", domain.ErrConnectionLost, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			tracing.RecordError(ctx, r.err)
			return requestResponse{}, r.err
		}
		if !r.resp.RequestStatus.Result {
			err := &RequestError{RequestType: requestType, Status: r.resp.RequestStatus}
			tracing.RecordError(ctx, err)
			return r.resp, err
		}
		c.logger.Debugw("OBS request succeeded", "request_type", requestType, "request_id", id)
		return r.resp, nil
	case <-ctx.Done():
		tracing.RecordError(ctx, ctx.Err())
		return requestResponse{}, fmt.Errorf("obs request %s: %w", requestType, ctx.Err())
	}
}

func (c *Client) writeEnvelope(conn *websocket.Conn, op int, payload any) error {
	d, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	return conn.WriteJSON(envelope{Op: op, D: d})
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		switch env.Op {
		case opRequestResponse:
			var resp requestResponse
			if err := json.Unmarshal(env.D, &resp); err != nil {
				c.logger.Debugw("Malformed OBS response", "error", err)
				continue
			}
			c.deliver(resp.RequestID, result{resp: resp})
		case opEvent:
			// not subscribed to anything in particular
		default:
			c.logger.Debugw("Unhandled OBS message", "op", env.Op)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.RequestTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugw("OBS ping failed", "error", err)
			}
		}
	}
}

func (c *Client) deliver(id string, r result) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, readErr error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closing := c.closing
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.mu.Unlock()

	c.setConnected(false)

	lost := fmt.Errorf("%w: %w", domain.ErrConnectionLost, readErr)
	for _, ch := range pending {
		select {
		case ch <- result{err: lost}:
		default:
		}
	}

	if closing {
		c.logger.Infow("Disconnected from OBS", "url", c.cfg.URL)
		c.notify(domain.ChannelDisconnected, nil)
		return
	}

	c.logger.Warnw("Lost connection to OBS", "url", c.cfg.URL, "error", readErr)
	c.notify(domain.ChannelDisconnected, lost)
}

func (c *Client) setConnected(connected bool) {
	c.connected.Store(connected)
	if c.metrics != nil {
		c.metrics.SetControlConnected(connected)
	}
}

func (c *Client) notify(status domain.ChannelStatus, err error) {
	c.mu.Lock()
	listeners := append([]StatusFunc(nil), c.onStatus...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(status, err)
	}
}
