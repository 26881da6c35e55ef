package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	pings    int
	closed   bool
	writeErr error
	written  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan struct{}, 100)}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, data)
	c.written <- struct{}{}
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.messages))
	for _, m := range c.messages {
		var ev Event
		require.NoError(t, json.Unmarshal(m, &ev))
		out = append(out, ev)
	}
	return out
}

func waitWritten(t *testing.T, c *fakeConn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.written:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
}

type countingMetrics struct {
	mu          sync.Mutex
	connections int
	dropped     int
}

func (m *countingMetrics) SetConnections(n int) {
	m.mu.Lock()
	m.connections = n
	m.mu.Unlock()
}

func (m *countingMetrics) EventDropped() {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func TestHub_PublishFansOutToEveryConnectionOfUser(t *testing.T) {
	metrics := &countingMetrics{}
	h := New(WithMetrics(metrics))
	defer h.Close()

	tab1, tab2, other := newFakeConn(), newFakeConn(), newFakeConn()
	h.Register("u1", tab1)
	h.Register("u1", tab2)
	h.Register("u2", other)
	assert.Equal(t, 2, h.ClientCount("u1"))
	assert.Equal(t, 3, metrics.connections)

	h.Publish("u1", Event{Type: EventProgress, ExecutionID: "e1", TaskID: 7, Data: map[string]any{"phase": "analysis", "progress": 30}})

	waitWritten(t, tab1, 1)
	waitWritten(t, tab2, 1)
	evs := tab1.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, EventProgress, evs[0].Type)
	assert.Equal(t, "e1", evs[0].ExecutionID)
	assert.Equal(t, int64(7), evs[0].TaskID)
	assert.Equal(t, "analysis", evs[0].Data["phase"])
	assert.False(t, evs[0].Timestamp.IsZero())
	assert.Empty(t, evs[0].UserID)
	assert.Empty(t, other.events(t))
}

func TestHub_UnregisterClosesConnection(t *testing.T) {
	h := New()
	conn := newFakeConn()
	c := h.Register("u1", conn)

	h.Unregister(c)
	h.Unregister(c)

	assert.True(t, conn.isClosed())
	assert.Zero(t, h.ClientCount("u1"))
	select {
	case <-c.Done():
	default:
		t.Fatal("client not marked done")
	}

	// Publishing to a user without connections is a no-op.
	h.Publish("u1", Event{Type: EventLog})
}

func TestHub_BrokenConnectionIsRemoved(t *testing.T) {
	h := New()
	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	c := h.Register("u1", conn)

	h.Publish("u1", Event{Type: EventLog})

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("broken client was not unregistered")
	}
	assert.Zero(t, h.ClientCount("u1"))
}

func TestHub_HeartbeatEvictsAfterMissedPongs(t *testing.T) {
	h := New(WithMaxMissedPongs(2))
	silent := newFakeConn()
	alive := newFakeConn()
	h.Register("u1", silent)
	aliveClient := h.Register("u1", alive)

	h.heartbeat()
	aliveClient.Pong()
	h.heartbeat()
	aliveClient.Pong()
	assert.Equal(t, 2, h.ClientCount("u1"))

	h.heartbeat()
	assert.Equal(t, 1, h.ClientCount("u1"))
	assert.True(t, silent.isClosed())
	assert.False(t, alive.isClosed())

	silent.mu.Lock()
	assert.Equal(t, 2, silent.pings)
	silent.mu.Unlock()
}

func TestHub_SubscribeReceivesAllUsers(t *testing.T) {
	h := New()
	id, ch := h.Subscribe(4)

	h.Publish("u1", Event{Type: EventCompleted, ExecutionID: "e1"})
	h.Publish("u2", Event{Type: EventError, ExecutionID: "e2"})

	ev := <-ch
	assert.Equal(t, "u1", ev.UserID)
	ev = <-ch
	assert.Equal(t, "u2", ev.UserID)
	assert.Equal(t, EventError, ev.Type)

	h.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestHub_PublishDropsWhenSubscriberIsFull(t *testing.T) {
	metrics := &countingMetrics{}
	h := New(WithMetrics(metrics))
	_, ch := h.Subscribe(1)

	h.Publish("u1", Event{Type: EventLog})
	h.Publish("u1", Event{Type: EventLog})

	assert.Len(t, ch, 1)
	assert.Equal(t, 1, metrics.dropped)
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	h := New()
	a, b := newFakeConn(), newFakeConn()
	h.Register("u1", a)
	h.Register("u2", b)
	_, ch := h.Subscribe(1)

	h.Close()

	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	_, ok := <-ch
	assert.False(t, ok)
}
