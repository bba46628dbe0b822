package api

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection. A user with three tabs open has
// three clients sharing a UserID. The subscriptions set is guarded by the
// hub's mutex, never the client's own; see Hub for the locking rules.
type Client struct {
	// ID is a per-connection UUID, distinct from the user identity.
	ID     string
	UserID string
	Name   string
	Email  string

	Hub  *Hub
	Conn *websocket.Conn

	// Send carries pre-serialized envelope frames to the write pump. The hub
	// closes it when the connection is deregistered.
	Send chan []byte

	// subscriptions holds the workspace IDs this connection has joined.
	// Guarded by Hub.mu.
	subscriptions map[string]bool

	ConnectedAt time.Time
}

// ReadPump pumps inbound frames from the connection into the message router.
// It owns all reads on the connection and tears the registration down when
// the peer goes away or stops answering pings.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Deregister(c)
		_ = c.Conn.Close()
	}()

	log := c.Hub.logger.ForConnection(c.ID, c.UserID)

	cfg := c.Hub.wsConfig
	c.Conn.SetReadLimit(int64(cfg.ReadLimitBytes))
	_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait()))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait()))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				log.Warn("[ws] read error: %v", err)
			}
			return
		}
		_ = c.Hub.router.Route(c, message)
	}
}

// WritePump pumps frames from the Send channel to the connection and keeps
// the transport alive with periodic pings. It owns all writes on the
// connection. Exactly one envelope goes out per frame; clients JSON-parse
// each frame as a single document.
func (c *Client) WritePump() {
	cfg := c.Hub.wsConfig
	ticker := time.NewTicker(cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait()))
			if !ok {
				// Hub deregistered this connection
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait()))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
