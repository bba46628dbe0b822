package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loopboard/realtime/auth"
)

// Close codes for handshake failures. 1008 and 1011 come from RFC 6455; the
// 4xxx codes are application-defined so clients can tell an expired token
// (refresh and reconnect) from a bad one (re-authenticate).
const (
	CloseCodeTokenExpired = 4001
	CloseCodeTokenInvalid = 4002
)

// upgrader upgrades HTTP requests to WebSocket connections. Origin checks
// are disabled; the token in the query string is the real gate, and the
// browser app is served from multiple preview domains.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS upgrades and authenticates a client connection. The browser
// WebSocket API hides HTTP status codes from scripts, so auth failures are
// reported as close codes after the upgrade instead of as 4xx responses.
func (s *Server) HandleWS(c *gin.Context) {
	claims, authErr := s.tokenValidator.ValidateToken(c.Query("token"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("[ws] upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}

	if authErr != nil {
		s.rejectConnection(conn, c.ClientIP(), authErr)
		return
	}

	client := &Client{
		ID:            uuid.New().String(),
		UserID:        claims.UserID(),
		Name:          claims.Name,
		Email:         claims.Email,
		Hub:           s.hub,
		Conn:          conn,
		Send:          make(chan []byte, s.wsConfig.SendBufferSize),
		subscriptions: make(map[string]bool),
		ConnectedAt:   time.Now().UTC(),
	}

	// The ack must be the first frame on the wire. Enqueue it before the
	// registry knows about the connection so no fanout can get ahead of it.
	ack, err := NewEnvelope(MessageTypeConnected, ConnectedPayload{UserID: client.UserID})
	if err != nil {
		s.logger.Error("[ws] failed to build connected ack: %v", err)
		closeWithCode(conn, websocket.CloseInternalServerErr, "internal error", s.wsConfig.WriteWait())
		return
	}
	client.Send <- ack

	s.hub.Register(client)
	s.logger.Info("[ws] connection established - connection_id: %s, user_id: %s, remote: %s",
		client.ID, client.UserID, c.ClientIP())

	go client.WritePump()
	go client.ReadPump()
}

// rejectConnection closes a just-upgraded connection with the close code
// matching the auth failure.
func (s *Server) rejectConnection(conn *websocket.Conn, clientIP string, authErr error) {
	var code int
	var reason string
	switch {
	case errors.Is(authErr, auth.ErrTokenMissing):
		code, reason = websocket.ClosePolicyViolation, "missing token"
	case errors.Is(authErr, auth.ErrTokenExpired):
		code, reason = CloseCodeTokenExpired, "token expired"
	case errors.Is(authErr, auth.ErrTokenInvalid):
		code, reason = CloseCodeTokenInvalid, "invalid token"
	default:
		code, reason = websocket.CloseInternalServerErr, "internal error"
	}

	s.logger.Warn("[ws] rejecting connection from %s: %s", clientIP, reason)
	s.hub.metrics.HandshakeFailed(context.Background(), reason)
	closeWithCode(conn, code, reason, s.wsConfig.WriteWait())
}

// closeWithCode sends a close frame and tears the connection down without
// registering it.
func closeWithCode(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	deadline := time.Now().Add(writeWait)
	message := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
	_ = conn.Close()
}
