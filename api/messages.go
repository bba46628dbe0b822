package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type field of a WebSocket envelope.
type MessageType string

// Client-to-server message types.
const (
	MessageTypeSubscribe        MessageType = "subscribe"
	MessageTypeUnsubscribe      MessageType = "unsubscribe"
	MessageTypePresenceSet      MessageType = "presence:set"
	MessageTypeCallInitiate     MessageType = "call:initiate"
	MessageTypeCallAnswer       MessageType = "call:answer"
	MessageTypeCallICECandidate MessageType = "call:ice-candidate"
	MessageTypeCallEnd          MessageType = "call:end"
	MessageTypePing             MessageType = "ping"
)

// Server-to-client message types. The call:* types appear in both directions
// because the relay forwards them between peers unchanged.
const (
	MessageTypeConnected           MessageType = "connected"
	MessageTypeTaskCreated         MessageType = "task:created"
	MessageTypeTaskUpdated         MessageType = "task:updated"
	MessageTypeTaskDeleted         MessageType = "task:deleted"
	MessageTypeListCreated         MessageType = "list:created"
	MessageTypeListUpdated         MessageType = "list:updated"
	MessageTypeListDeleted         MessageType = "list:deleted"
	MessageTypeWorkspaceUpdated    MessageType = "workspace:updated"
	MessageTypeNotificationCreated MessageType = "notification:created"
	MessageTypePresenceUpdate      MessageType = "presence:update"
	MessageTypePong                MessageType = "pong"
	MessageTypeError               MessageType = "error"
)

// IsServerOnly reports whether the type may only originate from the server.
// Clients that try to send one of these get an error envelope back.
func (t MessageType) IsServerOnly() bool {
	switch t {
	case MessageTypeConnected,
		MessageTypeTaskCreated, MessageTypeTaskUpdated, MessageTypeTaskDeleted,
		MessageTypeListCreated, MessageTypeListUpdated, MessageTypeListDeleted,
		MessageTypeWorkspaceUpdated, MessageTypeNotificationCreated,
		MessageTypePresenceUpdate, MessageTypePong, MessageTypeError:
		return true
	}
	return false
}

// IsDomainEvent reports whether the type is a task-management mutation event
// accepted on the internal ingest API.
func (t MessageType) IsDomainEvent() bool {
	switch t {
	case MessageTypeTaskCreated, MessageTypeTaskUpdated, MessageTypeTaskDeleted,
		MessageTypeListCreated, MessageTypeListUpdated, MessageTypeListDeleted,
		MessageTypeWorkspaceUpdated:
		return true
	}
	return false
}

// Envelope is the wire frame for every message in either direction. Payload
// stays opaque until a handler picks the concrete type for it.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope serializes a payload into a ready-to-send envelope frame.
// A nil payload produces an envelope with the payload field omitted.
func NewEnvelope(messageType MessageType, payload any) ([]byte, error) {
	envelope := Envelope{Type: messageType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
		}
		envelope.Payload = raw
	}
	return json.Marshal(envelope)
}

// StringList accepts either a single JSON string or an array of strings.
// Clients send calleeId both ways depending on whether the call is 1:1.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings")
	}
	*s = StringList(many)
	return nil
}

// MarshalJSON preserves the single-string form for 1:1 calls so relayed
// payloads look the way the initiating client shaped them.
func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// SubscribePayload asks to join a workspace's event feed.
type SubscribePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

// Validate implements payload validation for subscribe messages.
func (p *SubscribePayload) Validate() error {
	if p.WorkspaceID == "" {
		return fmt.Errorf("workspaceId is required")
	}
	return nil
}

// UnsubscribePayload asks to leave a workspace's event feed.
type UnsubscribePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

// Validate implements payload validation for unsubscribe messages.
func (p *UnsubscribePayload) Validate() error {
	if p.WorkspaceID == "" {
		return fmt.Errorf("workspaceId is required")
	}
	return nil
}

// PresenceSetPayload carries an explicit presence change from a client.
type PresenceSetPayload struct {
	Status  PresenceStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// Validate implements payload validation for presence:set messages.
func (p *PresenceSetPayload) Validate() error {
	if !p.Status.Valid() {
		return fmt.Errorf("status must be one of ONLINE, AWAY, BUSY or OFFLINE")
	}
	if len(p.Message) > 256 {
		return fmt.Errorf("message must be at most 256 characters")
	}
	return nil
}

// CallInitiatePayload starts a WebRTC call. Offer is an opaque SDP blob the
// server relays without inspecting. CallerName and CallerEmail are filled in
// server-side so callees can render the incoming-call screen without an
// extra lookup.
type CallInitiatePayload struct {
	CallID      string          `json:"callId"`
	CallerID    string          `json:"callerId"`
	CalleeID    StringList      `json:"calleeId"`
	CallType    string          `json:"callType"`
	Offer       json.RawMessage `json:"offer"`
	ChannelID   string          `json:"channelId,omitempty"`
	IsGroupCall bool            `json:"isGroupCall,omitempty"`
	CallerName  string          `json:"callerName,omitempty"`
	CallerEmail string          `json:"callerEmail,omitempty"`
}

// Validate implements payload validation for call:initiate messages.
func (p *CallInitiatePayload) Validate() error {
	if p.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if len(p.CalleeID) == 0 {
		return fmt.Errorf("calleeId is required")
	}
	for _, id := range p.CalleeID {
		if id == "" {
			return fmt.Errorf("calleeId entries must not be empty")
		}
	}
	if p.CallType != "audio" && p.CallType != "video" {
		return fmt.Errorf("callType must be audio or video")
	}
	if len(p.Offer) == 0 {
		return fmt.Errorf("offer is required")
	}
	return nil
}

// CallAnswerPayload carries an SDP answer back to one call participant.
type CallAnswerPayload struct {
	CallID       string          `json:"callId"`
	Answer       json.RawMessage `json:"answer"`
	TargetUserID string          `json:"targetUserId"`
}

// Validate implements payload validation for call:answer messages.
func (p *CallAnswerPayload) Validate() error {
	if p.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if len(p.Answer) == 0 {
		return fmt.Errorf("answer is required")
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("targetUserId is required")
	}
	return nil
}

// CallICECandidatePayload carries one ICE candidate to one call participant.
type CallICECandidatePayload struct {
	CallID       string          `json:"callId"`
	Candidate    json.RawMessage `json:"candidate"`
	TargetUserID string          `json:"targetUserId"`
}

// Validate implements payload validation for call:ice-candidate messages.
func (p *CallICECandidatePayload) Validate() error {
	if p.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if len(p.Candidate) == 0 {
		return fmt.Errorf("candidate is required")
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("targetUserId is required")
	}
	return nil
}

// CallEndPayload tells one participant the call is over. Relaying it is the
// only way a remote party learns the call ended.
type CallEndPayload struct {
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
}

// Validate implements payload validation for call:end messages.
func (p *CallEndPayload) Validate() error {
	if p.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("targetUserId is required")
	}
	return nil
}

// ConnectedPayload acknowledges a successful handshake. It is always the
// first frame a client receives.
type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports a per-message failure without closing the connection.
type ErrorPayload struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
