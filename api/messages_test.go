package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListAcceptsSingleString(t *testing.T) {
	var list StringList
	require.NoError(t, json.Unmarshal([]byte(`"bob"`), &list))
	assert.Equal(t, StringList{"bob"}, list)
}

func TestStringListAcceptsArray(t *testing.T) {
	var list StringList
	require.NoError(t, json.Unmarshal([]byte(`["bob","carol"]`), &list))
	assert.Equal(t, StringList{"bob", "carol"}, list)
}

func TestStringListRejectsOtherShapes(t *testing.T) {
	var list StringList
	assert.Error(t, json.Unmarshal([]byte(`42`), &list))
	assert.Error(t, json.Unmarshal([]byte(`{"id":"bob"}`), &list))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &list))
}

func TestStringListMarshalKeepsSingleForm(t *testing.T) {
	single, err := json.Marshal(StringList{"bob"})
	require.NoError(t, err)
	assert.Equal(t, `"bob"`, string(single))

	many, err := json.Marshal(StringList{"bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, `["bob","carol"]`, string(many))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := NewEnvelope(MessageTypeConnected, ConnectedPayload{UserID: "alice"})
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, MessageTypeConnected, envelope.Type)

	var payload ConnectedPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, "alice", payload.UserID)
}

func TestEnvelopeOmitsNilPayload(t *testing.T) {
	data, err := NewEnvelope(MessageTypePong, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(data))
}

func TestMessageTypeDirections(t *testing.T) {
	assert.True(t, MessageTypeConnected.IsServerOnly())
	assert.True(t, MessageTypeTaskCreated.IsServerOnly())
	assert.True(t, MessageTypePresenceUpdate.IsServerOnly())
	assert.False(t, MessageTypeSubscribe.IsServerOnly())
	assert.False(t, MessageTypeCallInitiate.IsServerOnly(), "call types flow both ways")

	assert.True(t, MessageTypeTaskUpdated.IsDomainEvent())
	assert.True(t, MessageTypeWorkspaceUpdated.IsDomainEvent())
	assert.False(t, MessageTypeNotificationCreated.IsDomainEvent())
	assert.False(t, MessageTypePing.IsDomainEvent())
}

func TestCallInitiatePayloadValidate(t *testing.T) {
	valid := func() CallInitiatePayload {
		return CallInitiatePayload{
			CallID:   "call-1",
			CalleeID: StringList{"bob"},
			CallType: "video",
			Offer:    json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
		}
	}

	assert.NoError(t, valid().Validate())

	p := valid()
	p.CallID = ""
	assert.ErrorContains(t, p.Validate(), "callId")

	p = valid()
	p.CalleeID = nil
	assert.ErrorContains(t, p.Validate(), "calleeId")

	p = valid()
	p.CalleeID = StringList{"bob", ""}
	assert.ErrorContains(t, p.Validate(), "empty")

	p = valid()
	p.CallType = "hologram"
	assert.ErrorContains(t, p.Validate(), "callType")

	p = valid()
	p.Offer = nil
	assert.ErrorContains(t, p.Validate(), "offer")
}

func TestCallInitiatePayloadParsesSingleCallee(t *testing.T) {
	raw := []byte(`{"callId":"call-1","callerId":"alice","calleeId":"bob","callType":"audio","offer":{"sdp":"v=0"}}`)
	var p CallInitiatePayload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, StringList{"bob"}, p.CalleeID)
	assert.False(t, p.IsGroupCall)
	assert.NoError(t, p.Validate())
}

func TestCallInitiatePayloadParsesGroupCall(t *testing.T) {
	raw := []byte(`{"callId":"call-2","callerId":"alice","calleeId":["bob","carol"],"callType":"video","offer":{"sdp":"v=0"},"channelId":"ch-9","isGroupCall":true}`)
	var p CallInitiatePayload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, StringList{"bob", "carol"}, p.CalleeID)
	assert.True(t, p.IsGroupCall)
	assert.Equal(t, "ch-9", p.ChannelID)
}

func TestCallAnswerPayloadValidate(t *testing.T) {
	p := CallAnswerPayload{CallID: "call-1", Answer: json.RawMessage(`{}`), TargetUserID: "alice"}
	assert.NoError(t, p.Validate())

	assert.Error(t, (&CallAnswerPayload{Answer: json.RawMessage(`{}`), TargetUserID: "alice"}).Validate())
	assert.Error(t, (&CallAnswerPayload{CallID: "call-1", TargetUserID: "alice"}).Validate())
	assert.Error(t, (&CallAnswerPayload{CallID: "call-1", Answer: json.RawMessage(`{}`)}).Validate())
}

func TestCallEndPayloadValidate(t *testing.T) {
	assert.NoError(t, (&CallEndPayload{CallID: "call-1", TargetUserID: "bob"}).Validate())
	assert.Error(t, (&CallEndPayload{TargetUserID: "bob"}).Validate())
	assert.Error(t, (&CallEndPayload{CallID: "call-1"}).Validate())
}

func TestPresenceSetPayloadValidate(t *testing.T) {
	assert.NoError(t, (&PresenceSetPayload{Status: PresenceAway, Message: "lunch"}).Validate())
	assert.Error(t, (&PresenceSetPayload{Status: "NAPPING"}).Validate())
	assert.Error(t, (&PresenceSetPayload{}).Validate(), "empty status is invalid")

	long := make([]byte, 257)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, (&PresenceSetPayload{Status: PresenceBusy, Message: string(long)}).Validate())
}

func TestSubscribePayloadValidate(t *testing.T) {
	assert.NoError(t, (&SubscribePayload{WorkspaceID: "ws-1"}).Validate())
	assert.Error(t, (&SubscribePayload{}).Validate())
	assert.Error(t, (&UnsubscribePayload{}).Validate())
}
