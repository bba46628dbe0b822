package api

import (
	"encoding/json"
	"fmt"
)

// PresenceSetHandler applies an explicit presence change from a client.
// The subject is always the authenticated user; clients cannot set presence
// for anyone else.
type PresenceSetHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *PresenceSetHandler) MessageType() MessageType {
	return MessageTypePresenceSet
}

// HandleMessage implements MessageHandler.
func (h *PresenceSetHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p PresenceSetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid presence:set payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	h.hub.SetPresence(client.UserID, p.Status, p.Message)
	h.hub.logger.Debug("[presence] user %s set status %s", client.UserID, p.Status)
	return nil
}

// PingHandler answers application-level pings. Browsers cannot observe
// transport ping/pong frames, so clients that want their own liveness
// watchdog send these instead.
type PingHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *PingHandler) MessageType() MessageType {
	return MessageTypePing
}

// HandleMessage implements MessageHandler.
func (h *PingHandler) HandleMessage(client *Client, _ json.RawMessage) error {
	h.hub.sendEnvelope(client, MessageTypePong, nil)
	return nil
}
