package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// internalRequest hits an /internal route with the given bearer key and
// returns the response with its decoded JSON body.
func internalRequest(t *testing.T, ts *testServer, method, path, key, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	decoded := map[string]json.RawMessage{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp, decoded
}

func deliveredCount(t *testing.T, body map[string]json.RawMessage) int {
	t.Helper()
	raw, ok := body["delivered"]
	require.True(t, ok, "response has no delivered field")
	var n int
	require.NoError(t, json.Unmarshal(raw, &n))
	return n
}

func TestInternalAuthRejectsMissingKey(t *testing.T) {
	ts := newWSTestServer(t)

	resp, body := internalRequest(t, ts, http.MethodGet, "/internal/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `"unauthorized"`, string(body["error"]))
}

func TestInternalAuthRejectsWrongKey(t *testing.T) {
	ts := newWSTestServer(t)

	resp, _ := internalRequest(t, ts, http.MethodGet, "/internal/stats", "not-the-key", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInternalAuthRejectsNonBearerScheme(t *testing.T) {
	ts := newWSTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/internal/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic "+testInternalKey)

	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIngestEventRejectsMalformedBody(t *testing.T) {
	ts := newWSTestServer(t)

	resp, _ := internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey, `{"workspaceId":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// workspaceId and type are both required
	resp, _ = internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey,
		`{"type":"task:created","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEventRejectsNonDomainType(t *testing.T) {
	ts := newWSTestServer(t)

	for _, eventType := range []string{"connected", "error", "presence:update", "subscribe", "made-up"} {
		resp, body := internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey,
			`{"workspaceId":"ws-1","type":"`+eventType+`","payload":{}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "type %s", eventType)
		assert.JSONEq(t, `"invalid_request"`, string(body["error"]), "type %s", eventType)
	}
}

func TestIngestEventWithNoSubscribers(t *testing.T) {
	ts := newWSTestServer(t)

	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey,
		`{"workspaceId":"ws-empty","type":"task:created","payload":{"id":"t1"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 0, deliveredCount(t, body))
}

func TestIngestEventDeliversToSubscriber(t *testing.T) {
	ts := newWSTestServer(t)

	conn := ts.dial(t, "alice")
	sendFrame(t, conn, MessageTypeSubscribe, SubscribePayload{WorkspaceID: "ws-1"})
	barrier(t, conn)

	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey,
		`{"workspaceId":"ws-1","type":"task:updated","payload":{"id":"task-9","title":"renamed"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, deliveredCount(t, body))

	envelope := readUntil(t, conn, MessageTypeTaskUpdated)
	assert.JSONEq(t, `{"id":"task-9","title":"renamed"}`, string(envelope.Payload))
}

func TestIngestEventExcludesActor(t *testing.T) {
	ts := newWSTestServer(t)

	alice := ts.dial(t, "alice")
	bob := ts.dial(t, "bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		sendFrame(t, conn, MessageTypeSubscribe, SubscribePayload{WorkspaceID: "ws-1"})
		barrier(t, conn)
	}

	// alice made the change; only bob should hear about it
	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/events", testInternalKey,
		`{"workspaceId":"ws-1","type":"list:created","payload":{"id":"l1"},"excludeUserId":"alice"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, deliveredCount(t, body))

	readUntil(t, bob, MessageTypeListCreated)

	// Had alice been included, the event would already sit ahead of this
	// ping's pong in her frame order
	sendFrame(t, alice, MessageTypePing, nil)
	envelope := readFrame(t, alice)
	assert.Equal(t, MessageTypePong, envelope.Type)
}

func TestNotifyUserDefaultsToNotificationCreated(t *testing.T) {
	ts := newWSTestServer(t)

	conn := ts.dial(t, "bob")

	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/users/bob/notify", testInternalKey,
		`{"payload":{"id":"n1","text":"you were mentioned"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, deliveredCount(t, body))

	envelope := readUntil(t, conn, MessageTypeNotificationCreated)
	assert.JSONEq(t, `{"id":"n1","text":"you were mentioned"}`, string(envelope.Payload))
}

func TestNotifyUserWithDomainType(t *testing.T) {
	ts := newWSTestServer(t)

	conn := ts.dial(t, "bob")

	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/users/bob/notify", testInternalKey,
		`{"type":"task:updated","payload":{"id":"t2"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, deliveredCount(t, body))

	readUntil(t, conn, MessageTypeTaskUpdated)
}

func TestNotifyUserRejectsProtocolTypes(t *testing.T) {
	ts := newWSTestServer(t)

	for _, eventType := range []string{"connected", "pong", "error", "presence:update", "subscribe"} {
		resp, _ := internalRequest(t, ts, http.MethodPost, "/internal/users/bob/notify", testInternalKey,
			`{"type":"`+eventType+`","payload":{}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "type %s", eventType)
	}
}

func TestNotifyUserRequiresPayload(t *testing.T) {
	ts := newWSTestServer(t)

	resp, _ := internalRequest(t, ts, http.MethodPost, "/internal/users/bob/notify", testInternalKey,
		`{"type":"notification:created"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifyOfflineUserIsAccepted(t *testing.T) {
	ts := newWSTestServer(t)

	resp, body := internalRequest(t, ts, http.MethodPost, "/internal/users/ghost/notify", testInternalKey,
		`{"payload":{"id":"n2"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 0, deliveredCount(t, body))
}

func TestGetPresenceBatch(t *testing.T) {
	ts := newWSTestServer(t)

	conn := ts.dial(t, "alice")
	barrier(t, conn)

	resp, body := internalRequest(t, ts, http.MethodGet,
		"/internal/presence?user_ids=alice,%20ghost", testInternalKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var records []PresenceRecord
	require.NoError(t, json.Unmarshal(body["presence"], &records))
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].UserID)
	assert.Equal(t, PresenceOnline, records[0].Status)
	assert.Equal(t, "ghost", records[1].UserID)
	assert.Equal(t, PresenceOffline, records[1].Status)
	assert.True(t, records[1].LastSeen.IsZero(), "never-seen users have no lastSeen")
}

func TestGetPresenceRequiresUserIDs(t *testing.T) {
	ts := newWSTestServer(t)

	for _, query := range []string{"", "?user_ids=", "?user_ids=%20,%20"} {
		resp, _ := internalRequest(t, ts, http.MethodGet, "/internal/presence"+query, testInternalKey, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", query)
	}
}

func TestStatsReflectRegistry(t *testing.T) {
	ts := newWSTestServer(t)

	tab1 := ts.dial(t, "alice")
	tab2 := ts.dial(t, "alice")
	sendFrame(t, tab1, MessageTypeSubscribe, SubscribePayload{WorkspaceID: "ws-1"})
	barrier(t, tab1)
	sendFrame(t, tab2, MessageTypeSubscribe, SubscribePayload{WorkspaceID: "ws-2"})
	barrier(t, tab2)

	resp, body := internalRequest(t, ts, http.MethodGet, "/internal/stats", testInternalKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats HubStats
	statsJSON, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(statsJSON, &stats))
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 2, stats.Workspaces)
	assert.Equal(t, 2, stats.Subscriptions)
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	ts := newWSTestServer(t)

	resp, err := ts.http.Client().Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	// No redis or postgres configured, so no backend fields either
	assert.NotContains(t, body, "redis")
	assert.NotContains(t, body, "postgres")
}
