package session

import (
	"MedicChat/models"
	"MedicChat/pkg/relay"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status  int
	Message string
	Fields  []string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool { return e.Status >= 500 }

type Option func(*Client)

// WithToken sends the JWT as a bearer header and as ?token= on /ws.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how many extra attempts Send makes and the first backoff,
// which doubles after every failure.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = attempts
		c.backoff = backoff
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client talks to one MedicChat server.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
		retries: 3,
		backoff: 200 * time.Millisecond,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type sendResponse struct {
	Message string         `json:"message"`
	Data    models.Message `json:"data"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// History fetches the full conversation in ascending order.
func (c *Client) History(ctx context.Context, customerID uint) ([]models.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/messages/"+strconv.FormatUint(uint64(customerID), 10), nil)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

// Customer looks up the customer a conversation belongs to.
func (c *Client) Customer(ctx context.Context, customerID uint) (models.Customer, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/customer/"+strconv.FormatUint(uint64(customerID), 10), nil)
	if err != nil {
		return models.Customer{}, err
	}
	var out models.Customer
	if err := c.do(req, &out); err != nil {
		return models.Customer{}, err
	}
	return out, nil
}

// Send posts a message. A client_request_id is generated when absent, and
// network failures or 5xx answers are retried with that same id, so a retry
// of a write that did land returns the original row instead of a copy.
func (c *Client) Send(ctx context.Context, in models.MessageInput) (models.Message, error) {
	if in.ClientRequestID == "" {
		in.ClientRequestID = uuid.NewString()
	}
	body, err := json.Marshal(in)
	if err != nil {
		return models.Message{}, fmt.Errorf("encode message: %w", err)
	}

	wait := c.backoff
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, http.MethodPost, "/messages", body)
		if err != nil {
			return models.Message{}, err
		}
		var resp sendResponse
		err = c.do(req, &resp)
		if err == nil {
			return resp.Data, nil
		}
		if !retryable(ctx, err) || attempt >= c.retries {
			return models.Message{}, err
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("client_request_id", in.ClientRequestID).Msg("send failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return models.Message{}, ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// transport failure
	return true
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = http.StatusText(res.StatusCode)
		}
		return &APIError{Status: res.StatusCode, Message: e.Error, Fields: e.Fields}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Event is one decoded relay frame.
type Event struct {
	Name    string
	Message models.Message
	Err     *ChatError
}

// ChatError is the payload of a "chat error" frame.
type ChatError struct {
	Error           string   `json:"error"`
	Fields          []string `json:"fields,omitempty"`
	ClientRequestID string   `json:"client_request_id,omitempty"`
}

// Subscription is a live relay connection.
type Subscription struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu   sync.Mutex
	closing   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	once      sync.Once
	done      chan struct{}
	err       error
}

func (c *Client) wsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Subscribe connects to the relay and calls fn for every chat frame, in
// arrival order, from a single goroutine. It returns once the server has
// confirmed the registration with a ready frame, so every message stored
// after that point is delivered. The subscription ends when ctx is done,
// Close is called or the server drops the connection.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) (*Subscription, error) {
	conn, res, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		if res != nil {
			return nil, &APIError{Status: res.StatusCode, Message: "websocket upgrade refused"}
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	s := &Subscription{conn: conn, log: c.log, done: make(chan struct{}), ready: make(chan struct{})}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	go s.readLoop(fn)

	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		if s.err != nil {
			return nil, fmt.Errorf("relay closed before ready: %w", s.err)
		}
		return nil, errors.New("relay closed before ready")
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

func (s *Subscription) readLoop(fn func(Event)) {
	defer s.finish(nil)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.finish(err)
			}
			return
		}
		var f relay.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Debug().Err(err).Msg("undecodable frame")
			continue
		}
		switch f.Event {
		case relay.EventReady:
			s.readyOnce.Do(func() { close(s.ready) })
		case relay.EventChatMessage:
			var m models.Message
			if err := json.Unmarshal(f.Data, &m); err != nil {
				s.log.Debug().Err(err).Msg("undecodable chat message")
				continue
			}
			fn(Event{Name: f.Event, Message: m})
		case relay.EventChatError:
			var e ChatError
			if err := json.Unmarshal(f.Data, &e); err != nil {
				s.log.Debug().Err(err).Msg("undecodable chat error")
				continue
			}
			fn(Event{Name: f.Event, Err: &e})
		}
	}
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Emit sends a message through the realtime path. The outcome arrives as a
// broadcast or as a chat error on this subscription.
func (s *Subscription) Emit(ctx context.Context, in models.MessageInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	frame, err := json.Marshal(relay.Frame{Event: relay.EventChatMessage, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}

// Done is closed when the read loop has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is the error that ended the subscription, nil for a clean close.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Close ends the subscription and waits for the read loop. It must not be
// called from inside the Subscribe callback.
func (s *Subscription) Close() error {
	if s.closing.Swap(true) {
		<-s.done
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	<-s.done
	return err
}
