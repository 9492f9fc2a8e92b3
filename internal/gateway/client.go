package gateway

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client is one authenticated WebSocket connection and the agent snapshot
// streams it holds.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Auth        AuthResult
	ConnectedAt time.Time

	conn   *websocket.Conn
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	closed  bool

	subMu    sync.Mutex
	subs     map[string]*broadcast.Subscription
	subsDone bool
}

// NewClient wraps an authenticated connection. conn may be nil in tests;
// sends then fail with ErrClientClosed.
func NewClient(conn *websocket.Conn, info ClientInfo, auth AuthResult, log *logging.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		ConnID:      id,
		Info:        info,
		Auth:        auth,
		ConnectedAt: time.Now(),
		conn:        conn,
		log:         log.With("connId", id),
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[string]*broadcast.Subscription),
	}
}

// Context ends when the client is closed. Long-running requests use it.
func (c *Client) Context() context.Context { return c.ctx }

// Send writes one frame. Writers are serialized and bounded by writeWait.
func (c *Client) Send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed || c.conn == nil {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed || c.conn == nil {
		return ErrClientClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// reply answers request id with result, or with err mapped to its shape.
func (c *Client) reply(id string, result any, err error) error {
	if err != nil {
		return c.Send(NewErrorResponse(id, errorShape(err)))
	}
	f, ferr := NewResponse(id, result)
	if ferr != nil {
		return c.Send(NewErrorResponse(id, ErrorShape{Code: CodeInternal, Message: ferr.Error()}))
	}
	return c.Send(f)
}

// readFrame returns the next frame. A message that is not a frame yields
// errBadFrame so the caller can answer and keep reading.
func (c *Client) readFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, errBadFrame{err}
	}
	return f, nil
}

type errBadFrame struct{ err error }

func (e errBadFrame) Error() string { return "malformed frame: " + e.err.Error() }
func (e errBadFrame) Unwrap() error { return e.err }

// keepalive arms the pong deadline, then pings until the client closes. It
// must be called before the read loop starts.
func (c *Client) keepalive() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-t.C:
				if err := c.ping(); err != nil {
					c.log.Debug().Err(err).Msg("ping failed")
					return
				}
			}
		}
	}()
}

// track records sub as the client's stream for its agent. A duplicate, or a
// subscription arriving after Close, is closed and track reports false.
func (c *Client) track(sub *broadcast.Subscription) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, dup := c.subs[sub.Topic()]; dup || c.subsDone {
		sub.Close()
		return false
	}
	c.subs[sub.Topic()] = sub
	return true
}

// forward sends each snapshot on sub as an event until sub closes or a send
// fails. The hub closes subscribers that fall behind.
func (c *Client) forward(sub *broadcast.Subscription, event string, seq func() int64) {
	defer c.untrack(sub)
	for snap := range sub.C {
		f, err := NewEvent(event, snap, seq())
		if err == nil {
			err = c.Send(f)
		}
		if err != nil {
			c.log.Debug().Err(err).Str("agentId", sub.Topic()).Msg("snapshot stream ended")
			sub.Close()
			return
		}
	}
}

func (c *Client) untrack(sub *broadcast.Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subs[sub.Topic()] == sub {
		delete(c.subs, sub.Topic())
	}
}

// Unsubscribe ends the stream for agentID and reports whether there was one.
func (c *Client) Unsubscribe(agentID string) bool {
	c.subMu.Lock()
	sub, ok := c.subs[agentID]
	delete(c.subs, agentID)
	c.subMu.Unlock()
	if ok {
		sub.Close()
	}
	return ok
}

// Subscriptions lists the agents being streamed, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close cancels Context, ends every stream and closes the socket. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.cancel()

	c.subMu.Lock()
	subs := c.subs
	c.subs = nil
	c.subsDone = true
	c.subMu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed || c.conn == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ClientRegistry tracks connected clients by connection id.
type ClientRegistry struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{log: log, clients: make(map[string]*Client)}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	n := len(r.clients)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Str("mode", c.Info.Mode).Int("connected", n).Msg("client connected")
}

func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	_, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Msg("client disconnected")
	}
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ClientSummary describes a connection for the clients.list method.
type ClientSummary struct {
	ConnID        string     `json:"connId"`
	Client        ClientInfo `json:"client"`
	AuthMethod    string     `json:"authMethod,omitempty"`
	ConnectedAt   time.Time  `json:"connectedAt"`
	Subscriptions []string   `json:"subscriptions"`
}

// List summarizes connected clients, oldest first.
func (r *ClientRegistry) List() []ClientSummary {
	r.mu.RLock()
	out := make([]ClientSummary, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, ClientSummary{
			ConnID:        c.ConnID,
			Client:        c.Info,
			AuthMethod:    c.Auth.Method,
			ConnectedAt:   c.ConnectedAt,
			Subscriptions: c.Subscriptions(),
		})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b ClientSummary) int {
		if d := a.ConnectedAt.Compare(b.ConnectedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ConnID, b.ConnID)
	})
	return out
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
