// Package relay fans persisted chat messages out to every connected
// websocket client. Delivery is best effort: a client whose send buffer is
// full misses the frame, and nothing is queued for disconnected clients.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventChatMessage = "chat message"
	EventChatError   = "chat error"
	// EventReady is the first frame a served client receives. Every
	// broadcast after it reaches that client.
	EventReady = "ready"
)

var ErrHubClosed = errors.New("relay: hub closed")

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is the subset of *websocket.Conn the relay needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// Handler processes one inbound frame. It runs on the client's read loop,
// so frames from a single client are handled in arrival order.
type Handler func(ctx context.Context, c *Client, f Frame)

type Options struct {
	SendBuffer    int
	PingPeriod    time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.ReadTimeout {
		o.PingPeriod = o.ReadTimeout * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	return o
}

// Client is one live connection.
type Client struct {
	ID   string
	Send chan []byte
	conn Conn
}

// Hub is the connection registry. It exists for the lifetime of the server
// and is shut down with Close.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	opts    Options
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger, opts Options) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "relay").Logger(),
	}
}

// NewClient wraps a connection. The client receives nothing until it is
// registered.
func (h *Hub) NewClient(conn Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Send: make(chan []byte, h.opts.SendBuffer),
		conn: conn,
	}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	return nil
}

// Unregister removes a client and closes its Send channel. Safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

// Broadcast sends one frame to every registered client.
func (h *Hub) Broadcast(event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.clients {
		select {
		case c.Send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn().Str("event", event).Int("dropped", dropped).Int("clients", len(h.clients)).Msg("slow clients skipped")
	}
	return nil
}

// Emit sends a frame to this client only.
func (h *Hub) Emit(c *Client, event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return nil
	}
	select {
	case c.Send <- data:
	default:
		h.log.Warn().Str("client", c.ID).Str("event", event).Msg("client buffer full, frame skipped")
	}
	return nil
}

type readyPayload struct {
	ClientID string `json:"client_id"`
}

// registerReady registers c and queues the ready frame while holding the
// lock, so no broadcast can be ordered before it.
func (h *Hub) registerReady(c *Client) error {
	data, err := encodeFrame(EventReady, readyPayload{ClientID: c.ID})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	select {
	case c.Send <- data:
	default:
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
}

// Serve registers the client, sends it the ready frame and pumps frames
// until the connection ends. It blocks; the caller should run it on the
// connection's goroutine.
func (h *Hub) Serve(ctx context.Context, c *Client, handle Handler) {
	if err := h.registerReady(c); err != nil {
		_ = c.conn.Close()
		return
	}
	h.log.Debug().Str("client", c.ID).Int("clients", h.ClientCount()).Msg("client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()

	h.readPump(ctx, c, handle)
	h.Unregister(c)
	<-done
	h.log.Debug().Str("client", c.ID).Int("clients", h.ClientCount()).Msg("client disconnected")
}

func (h *Hub) readPump(ctx context.Context, c *Client, handle Handler) {
	c.conn.SetReadLimit(h.opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Str("client", c.ID).Msg("read ended")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			h.log.Warn().Str("client", c.ID).Msg("malformed frame ignored")
			continue
		}
		if handle != nil {
			handle(ctx, c, f)
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
