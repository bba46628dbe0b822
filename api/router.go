package api

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/loopboard/realtime/internal/slogging"
)

// MessageHandler processes one inbound message type. Returning an error gets
// an error envelope sent back to the client; the connection stays open either
// way.
type MessageHandler interface {
	HandleMessage(client *Client, payload json.RawMessage) error
	MessageType() MessageType
}

// MessageRouter dispatches inbound envelopes to their registered handlers.
type MessageRouter struct {
	hub      *Hub
	handlers map[MessageType]MessageHandler
}

// NewMessageRouter builds a router with the full inbound handler set
// registered.
func NewMessageRouter(hub *Hub, users UserDirectory) *MessageRouter {
	r := &MessageRouter{
		hub:      hub,
		handlers: make(map[MessageType]MessageHandler),
	}
	r.RegisterHandler(&SubscribeHandler{hub: hub})
	r.RegisterHandler(&UnsubscribeHandler{hub: hub})
	r.RegisterHandler(&PresenceSetHandler{hub: hub})
	r.RegisterHandler(&CallInitiateHandler{hub: hub, users: users})
	r.RegisterHandler(&CallAnswerHandler{hub: hub})
	r.RegisterHandler(&CallICECandidateHandler{hub: hub})
	r.RegisterHandler(&CallEndHandler{hub: hub})
	r.RegisterHandler(&PingHandler{hub: hub})
	return r
}

// RegisterHandler adds or replaces the handler for a message type.
func (r *MessageRouter) RegisterHandler(handler MessageHandler) {
	r.handlers[handler.MessageType()] = handler
}

// Route parses one raw frame and dispatches it. A malformed or unsupported
// frame never closes the connection; the sender gets an error envelope and
// the stream continues.
func (r *MessageRouter) Route(client *Client, message []byte) error {
	defer func() {
		if rec := recover(); rec != nil {
			slogging.Get().Error("PANIC in message router - connection_id: %s, user_id: %s, error: %v, stack: %s",
				client.ID, client.UserID, rec, debug.Stack())
		}
	}()

	r.hub.logger.Debug("[wsmsg] received frame - connection_id: %s, user_id: %s, size: %d, raw: %s",
		client.ID, client.UserID, len(message), slogging.SanitizeLogMessage(string(message)))

	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		r.hub.logger.Warn("[wsmsg] invalid JSON from user %s: %v", client.UserID, err)
		r.hub.sendError(client, "invalid_json", "Message is not a valid JSON envelope")
		return err
	}

	if envelope.Type == "" {
		r.hub.sendError(client, "missing_type", "Envelope is missing the type field")
		return fmt.Errorf("envelope missing type")
	}

	if envelope.Type.IsServerOnly() {
		r.hub.logger.Warn("[wsmsg] user %s sent server-only type %q", client.UserID, envelope.Type)
		r.hub.sendError(client, "server_only_type",
			fmt.Sprintf("Message type %q cannot be sent by clients", envelope.Type))
		return fmt.Errorf("server-only type %q", envelope.Type)
	}

	handler, ok := r.handlers[envelope.Type]
	if !ok {
		r.hub.sendError(client, "unsupported_type",
			fmt.Sprintf("Message type %q is not supported", envelope.Type))
		return fmt.Errorf("unsupported type %q", envelope.Type)
	}

	r.hub.metrics.MessageReceived(context.Background(), string(envelope.Type))

	if err := handler.HandleMessage(client, envelope.Payload); err != nil {
		r.hub.logger.Warn("[wsmsg] %s rejected for user %s: %v", envelope.Type, client.UserID, err)
		r.hub.sendError(client, "invalid_payload", err.Error())
		return err
	}
	return nil
}
