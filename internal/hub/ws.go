package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	authTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

type authMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type authReply struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WSHandler upgrades requests to WebSocket connections and attaches them to
// the hub after the auth handshake.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(h *Hub) *WSHandler {
	return &WSHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	userID, err := s.authenticate(conn)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteJSON(authReply{Type: "auth_error", Error: err.Error()})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"))
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(authReply{Type: "auth_success"}); err != nil {
		_ = conn.Close()
		return
	}

	client := s.hub.Register(userID, &wsConn{conn: conn})
	conn.SetPongHandler(func(string) error {
		client.Pong()
		return nil
	})

	// Incoming frames are only read to process control messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.Unregister(client)
}

type authError string

func (e authError) Error() string { return string(e) }

func (s *WSHandler) authenticate(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(authTimeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", authError("authentication timed out")
	}
	var msg authMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "auth" {
		return "", authError("first message must be an auth message")
	}
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		return "", authError("userId is required")
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	return userID, nil
}
