package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/utils"
)

type MessageType string

const (
	URLDiscovered     MessageType = "url.discovered"
	CommandDiscovered MessageType = "command.discovered"
	ResultsCleared    MessageType = "results.cleared"
	ApplyStatus       MessageType = "apply.status"
	ChannelStatus     MessageType = "obs.status"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	sendBuffer          = 32
)

// Message is the JSON frame written to feed clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type URLPayload struct {
	URL         string `json:"url"`
	Source      string `json:"src"`
	Destination string `json:"dst"`
	FrameSize   int    `json:"packet_size"`
}

type CommandPayload struct {
	Command     domain.CommandKind `json:"command"`
	StreamKey   string             `json:"stream_key"`
	Source      string             `json:"src"`
	Destination string             `json:"dst"`
	FrameSize   int                `json:"packet_size"`
}

type ApplyPayload struct {
	Phase  domain.ApplyPhase `json:"phase"`
	Server string            `json:"server"`
	Error  string            `json:"error,omitempty"`
}

type ChannelPayload struct {
	Status domain.ChannelStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live discoveries out to websocket clients. Broadcasting never
// blocks: a client whose buffer is full misses the message.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed sits behind the API's own authentication.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:      make(map[string]*client),
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

var _ ports.ResultMirror = (*Hub)(nil)

// SetPingInterval changes the keepalive period for new connections.
func (h *Hub) SetPingInterval(interval time.Duration) {
	h.pingInterval = interval
	if h.readTimeout < 2*interval {
		h.readTimeout = 2 * interval
	}
}

// HandleWebSocket upgrades the request and streams messages until the client
// goes away or the hub is closed.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("Event feed upgrade failed", "error", err)
		return
	}

	c := &client{id: utils.GenerateRequestID(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeTimeout))
		conn.Close()
		return
	}
	h.logger.Infow("Event feed client connected", "client", c.id, "remote", r.RemoteAddr)

	h.wg.Add(1)
	go h.writeLoop(c)

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	for {
		// input is ignored; reading drives pong and close handling
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("Event feed read failed", "client", c.id, "error", err)
			}
			break
		}
	}

	h.unregister(c)
	h.logger.Infow("Event feed client disconnected", "client", c.id)
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(t MessageType, payload any) {
	msg := Message{Type: t, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.logger.Warnw("Failed to encode feed payload", "type", string(t), "error", err)
			return
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debugw("Event feed client too slow, message dropped", "client", c.id, "type", string(t))
		}
	}
}

func (h *Hub) MirrorURL(_ context.Context, record domain.URLRecord) error {
	h.Broadcast(URLDiscovered, URLPayload{
		URL:         record.URL,
		Source:      record.Source.String(),
		Destination: record.Destination.String(),
		FrameSize:   record.FrameSize,
	})
	return nil
}

func (h *Hub) MirrorCommand(_ context.Context, cmd domain.StreamCommand) error {
	h.Broadcast(CommandDiscovered, CommandPayload{
		Command:     cmd.Kind,
		StreamKey:   cmd.StreamKey,
		Source:      cmd.Source.String(),
		Destination: cmd.Destination.String(),
		FrameSize:   cmd.FrameSize,
	})
	return nil
}

func (h *Hub) Clear(context.Context) error {
	h.Broadcast(ResultsCleared, nil)
	return nil
}

// ApplyStatusListener matches the coordinator's status callback.
func (h *Hub) ApplyStatusListener(phase domain.ApplyPhase, settings domain.StreamSettings, err error) {
	p := ApplyPayload{Phase: phase, Server: settings.Server}
	if err != nil {
		p.Error = err.Error()
	}
	h.Broadcast(ApplyStatus, p)
}

// ChannelStatusListener matches the OBS client's status callback.
func (h *Hub) ChannelStatusListener(status domain.ChannelStatus, err error) {
	p := ChannelPayload{Status: status}
	if err != nil {
		p.Error = err.Error()
	}
	h.Broadcast(ChannelStatus, p)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their writers to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// writeLoop owns all writes to the connection. It closes the connection when
// the send channel is closed or a write fails, which ends the read loop.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debugw("Event feed write failed", "client", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
