package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxMissedPongs    = 2
	clientSendBuffer         = 64
)

// Conn is the transport side of a live connection. WriteMessage is only ever
// called from the client's writer goroutine; Ping may be called concurrently.
type Conn interface {
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Metrics receives hub gauges and counters. A nil Metrics is allowed.
type Metrics interface {
	SetConnections(n int)
	EventDropped()
}

type Client struct {
	id     string
	userID string
	conn   Conn
	send   chan []byte
	missed atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Pong records a heartbeat reply.
func (c *Client) Pong() {
	c.missed.Store(0)
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

type Hub struct {
	heartbeatInterval time.Duration
	maxMissedPongs    int32
	metrics           Metrics

	mu          sync.RWMutex
	users       map[string]map[string]*Client // userID -> clientID -> client
	subscribers map[string]chan Event
	count       int
}

type Option func(*Hub)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeatInterval = d
		}
	}
}

func WithMaxMissedPongs(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMissedPongs = int32(n)
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		heartbeatInterval: defaultHeartbeatInterval,
		maxMissedPongs:    defaultMaxMissedPongs,
		users:             make(map[string]map[string]*Client),
		subscribers:       make(map[string]chan Event),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds conn to userID's set and starts its writer goroutine.
func (h *Hub) Register(userID string, conn Conn) *Client {
	c := &Client{
		id:     ulid.Make().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.users[userID]
	if !ok {
		set = make(map[string]*Client)
		h.users[userID] = set
	}
	set[c.id] = c
	h.count++
	n := h.count
	h.mu.Unlock()

	h.reportConnections(n)
	slog.Debug("hub client registered", "user_id", userID, "client_id", c.id)

	go h.writeLoop(c)
	return c
}

// Unregister removes c and closes its connection. It is safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := false
	if set, ok := h.users[c.userID]; ok {
		if _, ok := set[c.id]; ok {
			delete(set, c.id)
			removed = true
			h.count--
		}
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	n := h.count
	h.mu.Unlock()

	if removed {
		h.reportConnections(n)
		slog.Debug("hub client unregistered", "user_id", c.userID, "client_id", c.id)
	}
	h.closeClient(c)
}

func (h *Hub) closeClient(c *Client) {
	c.closeOnce.Do(func() {
		close(c.send)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (h *Hub) writeLoop(c *Client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(msg); err != nil {
			slog.Debug("hub write failed", "user_id", c.userID, "client_id", c.id, "error", err)
			h.Unregister(c)
			return
		}
	}
}

// Publish delivers ev to every live connection of userID and to in-process
// subscribers. It never blocks: a full client buffer drops the event.
func (h *Hub) Publish(userID string, ev Event) {
	ev.UserID = userID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal hub event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- data:
		default:
			h.dropped()
		}
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.dropped()
		}
	}
}

// Subscribe returns a channel receiving every published event, for any user.
func (h *Hub) Subscribe(bufSize int) (string, <-chan Event) {
	id := ulid.Make().String()
	ch := make(chan Event, bufSize)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of live connections for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Run drives the heartbeat until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// heartbeat evicts clients that missed too many pongs and pings the rest.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	clients := make([]*Client, 0, h.count)
	for _, set := range h.users {
		for _, c := range set {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.missed.Load() >= h.maxMissedPongs {
			slog.Info("evicting unresponsive hub client", "user_id", c.userID, "client_id", c.id)
			h.Unregister(c)
			continue
		}
		c.missed.Add(1)
		if err := c.conn.Ping(); err != nil {
			h.Unregister(c)
		}
	}
}

// Close disconnects every client and subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	var clients []*Client
	for _, set := range h.users {
		for _, c := range set {
			clients = append(clients, c)
		}
	}
	h.users = make(map[string]map[string]*Client)
	h.count = 0
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	h.reportConnections(0)
	for _, c := range clients {
		h.closeClient(c)
	}
}

func (h *Hub) reportConnections(n int) {
	if h.metrics != nil {
		h.metrics.SetConnections(n)
	}
}

func (h *Hub) dropped() {
	if h.metrics != nil {
		h.metrics.EventDropped()
	}
}
