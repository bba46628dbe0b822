package slogging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"info", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.input), "input %q", tt.input)
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestNewLoggerDefaults(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{LogDir: dir})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	assert.Equal(t, filepath.Join(dir, "realtime.log"), logger.fileLogger.Filename)
	assert.Equal(t, 100, logger.fileLogger.MaxSize)
	assert.Equal(t, 10, logger.fileLogger.MaxBackups)
	assert.Equal(t, 7, logger.fileLogger.MaxAge)
	assert.True(t, logger.fileLogger.Compress)
}

func TestLoggerWritesJSONInProd(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{Level: LogLevelDebug, IsDev: false, LogDir: dir})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Info("boot %s", "ok")
	logger.InfoCtx(context.Background(), "structured", slog.String("workspace_id", "ws-1"))
	logger.GetSlogger().Info("via slogger")

	data, err := os.ReadFile(filepath.Join(dir, "realtime.log"))
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"msg":"boot ok"`)
	assert.Contains(t, out, `"workspace_id":"ws-1"`)
	assert.Contains(t, out, "via slogger")
	// RFC3339 timestamps in prod JSON output
	assert.Contains(t, out, `"time":"2`)
}

func TestLoggerDevModeAttributesSource(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{Level: LogLevelDebug, IsDev: true, LogDir: dir})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("dev probe")

	data, err := os.ReadFile(filepath.Join(dir, "realtime.log"))
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "dev probe")
	// Records point at the caller of the printf wrapper, not at the wrapper
	assert.Contains(t, out, "source=logger_test.go:")
}

func TestLoggerLevelGate(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{Level: LogLevelError, LogDir: dir})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("hidden")
	logger.Error("visible: %d", 42)

	data, err := os.ReadFile(filepath.Join(dir, "realtime.log"))
	require.NoError(t, err)
	out := string(data)

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible: 42")
}

func TestLoggerCtxMethodsRedactAttrs(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{Level: LogLevelDebug, LogDir: dir})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	ctx := context.Background()
	secret := "abcdefghijklmnopqrstuvwxyz0123456789"
	logger.DebugCtx(ctx, "handshake", slog.String("token", secret))
	logger.WarnCtx(ctx, "mirror write failed", slog.String("user_id", "user-9"))
	logger.ErrorCtx(ctx, "relay failed", slog.String("call_id", "call-1"))

	data, err := os.ReadFile(filepath.Join(dir, "realtime.log"))
	require.NoError(t, err)
	out := string(data)

	assert.NotContains(t, out, secret, "token attrs must be redacted on the way out")
	assert.Contains(t, out, "REDACTED")
	assert.Contains(t, out, "user-9")
	assert.Contains(t, out, "call-1")
}

func TestInitializeSetsGlobalLogger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{Level: LogLevelInfo, LogDir: dir}))

	logger := Get()
	require.NotNil(t, logger)
	logger.Info("global logger up")

	data, err := os.ReadFile(filepath.Join(dir, "realtime.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "global logger up"))
}
