package slogging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGinContext satisfies GinContextLike without pulling a full gin engine
// into the test.
type fakeGinContext struct {
	values      map[any]any
	reqHeaders  map[string]string
	respHeaders map[string]string
}

func (c *fakeGinContext) Get(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *fakeGinContext) GetHeader(key string) string {
	return c.reqHeaders[key]
}

func (c *fakeGinContext) ClientIP() string {
	return "203.0.113.7"
}

func (c *fakeGinContext) Header(key, value string) {
	c.respHeaders[key] = value
}

func newFakeGinContext() *fakeGinContext {
	return &fakeGinContext{
		values:      make(map[any]any),
		reqHeaders:  make(map[string]string),
		respHeaders: make(map[string]string),
	}
}

// newBufferLogger builds a Logger writing JSON records into a buffer so tests
// can assert on the emitted attributes.
func newBufferLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{slogger: slog.New(handler), level: level}, &buf
}

func TestWithContextBindsRequestAttrs(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	c := newFakeGinContext()
	c.reqHeaders["X-Request-ID"] = "req-42"
	c.values["userID"] = "user-9"

	cl := logger.WithContext(c)
	cl.Info("handled %s", "GET")

	out := buf.String()
	assert.Contains(t, out, "req-42")
	assert.Contains(t, out, "203.0.113.7")
	assert.Contains(t, out, "user-9")
	assert.Contains(t, out, "handled GET")
}

func TestWithContextGeneratesRequestID(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	c := newFakeGinContext()
	cl := logger.WithContext(c)

	requestID := c.respHeaders["X-Request-ID"]
	require.NotEmpty(t, requestID, "a missing X-Request-ID header gets a generated one")
	_, err := uuid.Parse(requestID)
	require.NoError(t, err)

	cl.Info("handled")
	assert.Contains(t, buf.String(), requestID)
}

func TestForConnectionBindsConnectionAttrs(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	cl := logger.ForConnection("conn-1", "user-3")
	cl.Warn("read error: %s", "EOF")

	out := buf.String()
	assert.Contains(t, out, "conn-1")
	assert.Contains(t, out, "user-3")
	assert.Contains(t, out, "read error: EOF")
}

func TestContextLoggerLevelGate(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelError)

	cl := logger.ForConnection("conn-1", "user-3")
	cl.Debug("quiet")
	cl.Info("quiet")
	cl.Warn("quiet")
	assert.Empty(t, buf.String(), "records below the configured level are suppressed")

	cl.Error("boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestContextLoggerWithAttrs(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	cl := logger.ForConnection("conn-1", "user-3").WithAttrs(slog.String("workspace_id", "ws-7"))
	cl.Info("subscribed")

	out := buf.String()
	assert.Contains(t, out, "workspace_id")
	assert.Contains(t, out, "ws-7")
	assert.Contains(t, out, "conn-1")
}

func TestGetContextLoggerPrefersStoredLogger(t *testing.T) {
	logger, _ := newBufferLogger(LogLevelDebug)
	stored := logger.ForConnection("conn-1", "user-3")

	c := newFakeGinContext()
	c.values["logger"] = stored

	got := GetContextLogger(c)
	assert.Same(t, stored, got)
}

func TestGetContextLoggerFallsBackToGlobal(t *testing.T) {
	t.Setenv("REALTIME_LOG_DIR", t.TempDir())

	got := GetContextLogger(newFakeGinContext())
	assert.NotNil(t, got)
}
