package api

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loopboard/realtime/internal/config"
	"github.com/loopboard/realtime/internal/slogging"
	"github.com/loopboard/realtime/internal/telemetry"
)

// Hub is the connection registry. It tracks every live client and two
// secondary indexes, one by user and one by subscribed workspace, all under
// a single mutex so registration, subscription changes and lookups stay
// mutually consistent.
//
// Locking rules: a client's Send channel is only written to while holding
// mu (read or write) and only closed while holding the write lock, so a
// send can never race a close. Slow consumers found during a fanout are
// detached from a goroutine, which blocks on the write lock until the
// fanout's read lock is released.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	byUser      map[string]map[string]*Client
	byWorkspace map[string]map[string]*Client

	presence *PresenceTracker
	router   *MessageRouter
	metrics  *telemetry.HubMetrics
	logger   *slogging.Logger
	wsConfig config.WebSocketConfig
}

// HubStats is a point-in-time census of the registry.
type HubStats struct {
	Connections   int `json:"connections"`
	Users         int `json:"users"`
	Workspaces    int `json:"workspaces"`
	Subscriptions int `json:"subscriptions"`
}

// NewHub builds the registry and its message router. users may be nil when
// no directory is configured; metrics may be nil when telemetry is off.
func NewHub(wsConfig config.WebSocketConfig, presence *PresenceTracker, users UserDirectory, metrics *telemetry.HubMetrics) *Hub {
	h := &Hub{
		clients:     make(map[string]*Client),
		byUser:      make(map[string]map[string]*Client),
		byWorkspace: make(map[string]map[string]*Client),
		presence:    presence,
		metrics:     metrics,
		logger:      slogging.Get(),
		wsConfig:    wsConfig,
	}
	h.router = NewMessageRouter(h, users)
	return h
}

// Presence exposes the tracker for the internal API.
func (h *Hub) Presence() *PresenceTracker {
	return h.presence
}

// Register adds a freshly upgraded connection to the registry. If it is the
// user's first live connection their presence flips out of OFFLINE and the
// change is fanned out.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	userConns := h.byUser[client.UserID]
	if userConns == nil {
		userConns = make(map[string]*Client)
		h.byUser[client.UserID] = userConns
	}
	userConns[client.ID] = client
	firstConnection := len(userConns) == 1
	h.mu.Unlock()

	ctx := context.Background()
	h.metrics.ConnectionOpened(ctx)
	h.logger.Info("[hub] connection registered - connection_id: %s, user_id: %s", client.ID, client.UserID)

	if firstConnection {
		h.metrics.UserOnline(ctx)
		if record, changed := h.presence.HandleConnect(client.UserID); changed {
			h.fanOutPresence(record, nil)
		}
	}
}

// Deregister removes a connection from the registry and every index, then
// closes its Send channel. Safe to call more than once per connection. If it
// was the user's last connection the user goes OFFLINE and the change is
// fanned out to the workspaces the connection was subscribed to.
func (h *Hub) Deregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)

	// Snapshot before the indexes forget where this connection was; the
	// OFFLINE fanout still has to reach those workspaces.
	workspaces := make([]string, 0, len(client.subscriptions))
	for workspaceID := range client.subscriptions {
		workspaces = append(workspaces, workspaceID)
		if conns, ok := h.byWorkspace[workspaceID]; ok {
			delete(conns, client.ID)
			if len(conns) == 0 {
				delete(h.byWorkspace, workspaceID)
			}
		}
	}

	if userConns, ok := h.byUser[client.UserID]; ok {
		delete(userConns, client.ID)
		if len(userConns) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	_, stillOnline := h.byUser[client.UserID]
	close(client.Send)
	h.mu.Unlock()

	ctx := context.Background()
	h.metrics.ConnectionClosed(ctx)
	for range workspaces {
		h.metrics.SubscriptionRemoved(ctx)
	}
	h.logger.Info("[hub] connection deregistered - connection_id: %s, user_id: %s, subscriptions: %d",
		client.ID, client.UserID, len(workspaces))

	if !stillOnline {
		h.metrics.UserOffline(ctx)
		record := h.presence.HandleDisconnect(client.UserID)
		h.fanOutPresence(record, workspaces)
	}
}

// Subscribe joins a connection to a workspace feed. Returns false when the
// connection is already subscribed or no longer registered.
func (h *Hub) Subscribe(client *Client, workspaceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	if client.subscriptions[workspaceID] {
		return false
	}
	client.subscriptions[workspaceID] = true
	conns := h.byWorkspace[workspaceID]
	if conns == nil {
		conns = make(map[string]*Client)
		h.byWorkspace[workspaceID] = conns
	}
	conns[client.ID] = client
	return true
}

// Unsubscribe removes a connection from a workspace feed. Returns false when
// the connection was not subscribed.
func (h *Hub) Unsubscribe(client *Client, workspaceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.subscriptions[workspaceID] {
		return false
	}
	delete(client.subscriptions, workspaceID)
	if conns, ok := h.byWorkspace[workspaceID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.byWorkspace, workspaceID)
		}
	}
	return true
}

// IsSubscribed reports whether a connection is currently in a workspace feed.
func (h *Hub) IsSubscribed(client *Client, workspaceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.subscriptions[workspaceID]
}

// ConnectionsForUser returns how many live connections a user has.
func (h *Hub) ConnectionsForUser(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Stats returns a census of the registry.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		Connections: len(h.clients),
		Users:       len(h.byUser),
		Workspaces:  len(h.byWorkspace),
	}
	for _, conns := range h.byWorkspace {
		stats.Subscriptions += len(conns)
	}
	return stats
}

// sendLocked enqueues a pre-serialized frame on one connection. Callers must
// hold h.mu. A connection whose buffer is full is beyond saving; it gets
// detached entirely rather than stalling the fanout or receiving a gapped
// stream.
func (h *Hub) sendLocked(client *Client, message []byte) bool {
	select {
	case client.Send <- message:
		return true
	default:
		h.logger.Warn("[hub] send buffer full, detaching connection - connection_id: %s, user_id: %s",
			client.ID, client.UserID)
		h.metrics.SendDropped(context.Background())
		go h.Deregister(client)
		return false
	}
}

// sendEnvelope serializes and delivers a single-recipient envelope, such as
// an error reply or a pong.
func (h *Hub) sendEnvelope(client *Client, messageType MessageType, payload any) {
	data, err := NewEnvelope(messageType, payload)
	if err != nil {
		h.logger.Error("[hub] failed to build %s envelope: %v", messageType, err)
		return
	}
	h.mu.RLock()
	h.sendLocked(client, data)
	h.mu.RUnlock()
}

// sendError reports a per-message failure back to the sender. The connection
// stays open.
func (h *Hub) sendError(client *Client, code, message string) {
	h.sendEnvelope(client, MessageTypeError, ErrorPayload{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// relayToUser delivers a pre-serialized frame to every connection of one
// user and returns how many accepted it.
func (h *Hub) relayToUser(userID string, message []byte) int {
	h.mu.RLock()
	delivered := 0
	for _, client := range h.byUser[userID] {
		if h.sendLocked(client, message) {
			delivered++
		}
	}
	h.mu.RUnlock()
	return delivered
}

// SetPresence applies an explicit presence change and fans it out.
func (h *Hub) SetPresence(userID string, status PresenceStatus, message string) {
	record := h.presence.Set(userID, status, message)
	h.fanOutPresence(record, nil)
}

// GetPresence resolves presence for a batch of users.
func (h *Hub) GetPresence(userIDs []string) []PresenceRecord {
	return h.presence.Get(userIDs)
}

// fanOutPresence delivers a presence:update to the subject's own connections
// and to every connection sharing a workspace with them. extraWorkspaces
// widens the audience for disconnects, where the subject's subscriptions are
// already gone from the indexes.
func (h *Hub) fanOutPresence(record PresenceRecord, extraWorkspaces []string) {
	data, err := NewEnvelope(MessageTypePresenceUpdate, record)
	if err != nil {
		h.logger.Error("[presence] failed to build update for user %s: %v", record.UserID, err)
		return
	}

	h.mu.RLock()
	targets := make(map[string]*Client)
	for _, conn := range h.byUser[record.UserID] {
		targets[conn.ID] = conn
		for workspaceID := range conn.subscriptions {
			for _, peer := range h.byWorkspace[workspaceID] {
				targets[peer.ID] = peer
			}
		}
	}
	for _, workspaceID := range extraWorkspaces {
		for _, peer := range h.byWorkspace[workspaceID] {
			targets[peer.ID] = peer
		}
	}
	for _, target := range targets {
		h.sendLocked(target, data)
	}
	h.mu.RUnlock()

	h.metrics.PresenceUpdated(context.Background(), string(record.Status))
	h.logger.Debug("[presence] fanned out %s for user %s to %d connections",
		record.Status, record.UserID, len(targets))
}

// Shutdown tells every live connection the server is going away. The close
// frame gives well-behaved clients a clean reconnect signal before the
// listener stops.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	deadline := time.Now().Add(h.wsConfig.WriteWait())
	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, client := range clients {
		_ = client.Conn.WriteControl(websocket.CloseMessage, message, deadline)
		_ = client.Conn.Close()
	}
	h.logger.Info("[hub] shutdown complete, closed %d connections", len(clients))
}
