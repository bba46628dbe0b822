package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loopboard/realtime/internal/userdir"
)

// UserDirectory resolves display data for call enrichment. Implementations
// should answer from cache where they can; this sits on the call setup path.
type UserDirectory interface {
	Lookup(ctx context.Context, userIDs []string) (map[string]userdir.UserInfo, error)
}

const callerLookupTimeout = 2 * time.Second

// CallInitiateHandler relays call invitations to every callee. The relay
// holds no call state; whether anyone answers is the callers' problem.
type CallInitiateHandler struct {
	hub   *Hub
	users UserDirectory
}

// MessageType implements MessageHandler.
func (h *CallInitiateHandler) MessageType() MessageType {
	return MessageTypeCallInitiate
}

// HandleMessage implements MessageHandler.
func (h *CallInitiateHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p CallInitiatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid call:initiate payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	// The caller identity comes from the connection, not the payload, so a
	// client cannot place calls as somebody else.
	p.CallerID = client.UserID
	h.enrichCaller(client, &p)

	data, err := NewEnvelope(MessageTypeCallInitiate, &p)
	if err != nil {
		return fmt.Errorf("failed to serialize call invitation: %w", err)
	}

	delivered := 0
	for _, calleeID := range p.CalleeID {
		n := h.hub.relayToUser(calleeID, data)
		if n == 0 {
			h.hub.logger.Debug("[call] callee %s has no live connections for call %s", calleeID, p.CallID)
		}
		delivered += n
	}

	h.hub.metrics.CallRelayed(context.Background(), "initiate")
	h.hub.logger.Info("[call] relayed invitation - call_id: %s, caller: %s, type: %s, callees: %d, connections: %d",
		p.CallID, p.CallerID, p.CallType, len(p.CalleeID), delivered)
	return nil
}

// enrichCaller fills in the caller display fields from connection claims,
// falling back to the user directory when the token carried no profile.
func (h *CallInitiateHandler) enrichCaller(client *Client, p *CallInitiatePayload) {
	if p.CallerName == "" {
		p.CallerName = client.Name
	}
	if p.CallerEmail == "" {
		p.CallerEmail = client.Email
	}
	if (p.CallerName != "" && p.CallerEmail != "") || h.users == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callerLookupTimeout)
	defer cancel()
	infos, err := h.users.Lookup(ctx, []string{client.UserID})
	if err != nil {
		h.hub.logger.Warn("[call] caller lookup failed for user %s: %v", client.UserID, err)
		return
	}
	if info, ok := infos[client.UserID]; ok {
		if p.CallerName == "" {
			p.CallerName = info.Name
		}
		if p.CallerEmail == "" {
			p.CallerEmail = info.Email
		}
	}
}

// relayCall forwards a signaling payload unchanged to every connection of
// the target user. Offline targets are dropped silently; WebRTC clients
// handle the resulting timeout themselves.
func relayCall(hub *Hub, messageType MessageType, kind, callID, targetUserID string, payload json.RawMessage) {
	data, err := json.Marshal(Envelope{Type: messageType, Payload: payload})
	if err != nil {
		hub.logger.Error("[call] failed to serialize %s for call %s: %v", messageType, callID, err)
		return
	}

	delivered := hub.relayToUser(targetUserID, data)
	hub.metrics.CallRelayed(context.Background(), kind)
	if delivered == 0 {
		hub.logger.Debug("[call] target %s offline for %s - call_id: %s", targetUserID, messageType, callID)
		return
	}
	hub.logger.Debug("[call] relayed %s - call_id: %s, target: %s, connections: %d",
		messageType, callID, targetUserID, delivered)
}

// CallAnswerHandler relays SDP answers back to the caller.
type CallAnswerHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *CallAnswerHandler) MessageType() MessageType {
	return MessageTypeCallAnswer
}

// HandleMessage implements MessageHandler.
func (h *CallAnswerHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p CallAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid call:answer payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	relayCall(h.hub, MessageTypeCallAnswer, "answer", p.CallID, p.TargetUserID, payload)
	return nil
}

// CallICECandidateHandler relays ICE candidates between call participants.
// This is the hot path during call setup; candidates arrive in bursts.
type CallICECandidateHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *CallICECandidateHandler) MessageType() MessageType {
	return MessageTypeCallICECandidate
}

// HandleMessage implements MessageHandler.
func (h *CallICECandidateHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p CallICECandidatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid call:ice-candidate payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	relayCall(h.hub, MessageTypeCallICECandidate, "ice-candidate", p.CallID, p.TargetUserID, payload)
	return nil
}

// CallEndHandler relays hangups. Each participant tells the others the call
// is over; with no server-side call state this message is the only way a
// remote party learns about the hangup.
type CallEndHandler struct {
	hub *Hub
}

// MessageType implements MessageHandler.
func (h *CallEndHandler) MessageType() MessageType {
	return MessageTypeCallEnd
}

// HandleMessage implements MessageHandler.
func (h *CallEndHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var p CallEndPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid call:end payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	relayCall(h.hub, MessageTypeCallEnd, "end", p.CallID, p.TargetUserID, payload)
	return nil
}
