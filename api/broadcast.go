package api

import (
	"context"
	"encoding/json"
)

// Broadcast serializes an event once and fans it out to every connection
// subscribed to the workspace. excludeUserID skips the actor's own
// connections; clients that applied a change optimistically do not want the
// echo. Returns how many connections accepted the frame.
func (h *Hub) Broadcast(workspaceID string, eventType MessageType, payload json.RawMessage, excludeUserID string) int {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("[broadcast] failed to serialize %s for workspace %s: %v", eventType, workspaceID, err)
		return 0
	}

	h.mu.RLock()
	delivered := 0
	for _, client := range h.byWorkspace[workspaceID] {
		if excludeUserID != "" && client.UserID == excludeUserID {
			continue
		}
		if h.sendLocked(client, data) {
			delivered++
		}
	}
	h.mu.RUnlock()

	h.metrics.BroadcastSent(context.Background(), string(eventType), delivered)
	if delivered > 0 {
		h.logger.Debug("[broadcast] %s delivered to %d connections in workspace %s",
			eventType, delivered, workspaceID)
	}
	return delivered
}

// BroadcastToUser delivers an event to every connection of one user,
// regardless of workspace subscriptions. Returns how many connections
// accepted the frame; zero means the user is offline, which is fine.
func (h *Hub) BroadcastToUser(userID string, eventType MessageType, payload json.RawMessage) int {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("[broadcast] failed to serialize %s for user %s: %v", eventType, userID, err)
		return 0
	}

	delivered := h.relayToUser(userID, data)
	h.metrics.BroadcastSent(context.Background(), string(eventType), delivered)
	return delivered
}

// BroadcastTaskCreated announces a new task to a workspace.
func (h *Hub) BroadcastTaskCreated(workspaceID string, task json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeTaskCreated, task, actorID)
}

// BroadcastTaskUpdated announces a task change to a workspace.
func (h *Hub) BroadcastTaskUpdated(workspaceID string, task json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeTaskUpdated, task, actorID)
}

// BroadcastTaskDeleted announces a task removal to a workspace.
func (h *Hub) BroadcastTaskDeleted(workspaceID string, task json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeTaskDeleted, task, actorID)
}

// BroadcastListCreated announces a new list to a workspace.
func (h *Hub) BroadcastListCreated(workspaceID string, list json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeListCreated, list, actorID)
}

// BroadcastListUpdated announces a list change to a workspace.
func (h *Hub) BroadcastListUpdated(workspaceID string, list json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeListUpdated, list, actorID)
}

// BroadcastListDeleted announces a list removal to a workspace.
func (h *Hub) BroadcastListDeleted(workspaceID string, list json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeListDeleted, list, actorID)
}

// BroadcastWorkspaceUpdated announces workspace metadata changes, membership
// included, to everyone subscribed.
func (h *Hub) BroadcastWorkspaceUpdated(workspaceID string, workspace json.RawMessage, actorID string) int {
	return h.Broadcast(workspaceID, MessageTypeWorkspaceUpdated, workspace, actorID)
}

// NotifyUser pushes a notification to one user's connections.
func (h *Hub) NotifyUser(userID string, notification json.RawMessage) int {
	return h.BroadcastToUser(userID, MessageTypeNotificationCreated, notification)
}
