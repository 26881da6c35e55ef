package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount(userID) == n }, time.Second, 10*time.Millisecond)
}

func TestWSHandler_AuthAndPush(t *testing.T) {
	h := New()
	defer h.Close()
	srv := httptest.NewServer(NewWSHandler(h))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "userId": "u1"}))

	var reply authReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "auth_success", reply.Type)
	waitClients(t, h, "u1", 1)

	h.Publish("u1", Event{Type: EventStarted, ExecutionID: "e1", TaskID: 3})

	var ev map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "agent:started", ev["type"])
	assert.Equal(t, "e1", ev["executionId"])
	assert.Equal(t, float64(3), ev["taskId"])
	assert.NotEmpty(t, ev["timestamp"])
	assert.NotContains(t, ev, "UserID")

	require.NoError(t, conn.Close())
	waitClients(t, h, "u1", 0)
}

func TestWSHandler_RejectsNonAuthFirstMessage(t *testing.T) {
	h := New()
	defer h.Close()
	srv := httptest.NewServer(NewWSHandler(h))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "hello"}))

	var reply authReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "auth_error", reply.Type)
	assert.NotEmpty(t, reply.Error)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, h.ClientCount(""))
}

func TestWSHandler_PongResetsMissedCounter(t *testing.T) {
	h := New(WithMaxMissedPongs(1))
	defer h.Close()
	srv := httptest.NewServer(NewWSHandler(h))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "userId": "u1"}))
	var reply authReply
	require.NoError(t, conn.ReadJSON(&reply))
	waitClients(t, h, "u1", 1)

	// The client answers pings automatically while it is reading.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		h.heartbeat()
		time.Sleep(100 * time.Millisecond)
	}
	assert.Equal(t, 1, h.ClientCount("u1"))
}
