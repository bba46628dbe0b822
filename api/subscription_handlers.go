package api

import (
	"context"
	"encoding/json"
)

// SubscribeHandler joins a connection to a workspace feed. Malformed
// subscribe payloads are dropped without a reply.
type SubscribeHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *SubscribeHandler) MessageType() MessageType {
	return MessageTypeSubscribe
}

// HandleMessage implements MessageHandler.
func (h *SubscribeHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.hub.logger.Debug("[sub] dropping malformed subscribe from user %s: %v", client.UserID, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		h.hub.logger.Debug("[sub] dropping subscribe without workspaceId from user %s", client.UserID)
		return nil
	}

	if h.hub.Subscribe(client, p.WorkspaceID) {
		h.hub.metrics.SubscriptionAdded(context.Background())
		h.hub.logger.Debug("[sub] connection %s subscribed to workspace %s", client.ID, p.WorkspaceID)
	}
	return nil
}

// UnsubscribeHandler removes a connection from a workspace feed. Like
// subscribe, malformed payloads are dropped silently and unsubscribing from
// a workspace the connection never joined is a no-op.
type UnsubscribeHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *UnsubscribeHandler) MessageType() MessageType {
	return MessageTypeUnsubscribe
}

// HandleMessage implements MessageHandler.
func (h *UnsubscribeHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p UnsubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.hub.logger.Debug("[sub] dropping malformed unsubscribe from user %s: %v", client.UserID, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		return nil
	}

	if h.hub.Unsubscribe(client, p.WorkspaceID) {
		h.hub.metrics.SubscriptionRemoved(context.Background())
		h.hub.logger.Debug("[sub] connection %s unsubscribed from workspace %s", client.ID, p.WorkspaceID)
	}
	return nil
}
