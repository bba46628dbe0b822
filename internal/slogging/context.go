package slogging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// GinContextLike defines a minimal interface for contexts that can be used
// with the logger (satisfied by *gin.Context)
type GinContextLike interface {
	Get(key any) (any, bool)
	GetHeader(key string) string
	ClientIP() string
}

// GetContextLogger retrieves a logger from the context or falls back to the
// global logger
func GetContextLogger(c GinContextLike) SimpleLogger {
	if loggerInterface, exists := c.Get("logger"); exists {
		if logger, ok := loggerInterface.(SimpleLogger); ok {
			return logger
		}
	}
	return Get()
}

// WithContext returns a context-aware logger that includes request information
func (l *Logger) WithContext(c GinContextLike) *ContextLogger {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		if setter, ok := c.(interface{ Header(string, string) }); ok {
			setter.Header("X-Request-ID", requestID)
		}
	}

	userID, _ := c.Get("userID")

	contextLogger := l.slogger.With(
		slog.String("request_id", requestID),
		slog.String("client_ip", c.ClientIP()),
		slog.String("user_id", fmt.Sprintf("%v", userID)),
	)

	return &ContextLogger{
		logger:  l,
		slogger: contextLogger,
		ctx:     context.Background(),
	}
}

// ForConnection returns a logger scoped to one WebSocket connection.
func (l *Logger) ForConnection(connectionID, userID string) *ContextLogger {
	return &ContextLogger{
		logger: l,
		slogger: l.slogger.With(
			slog.String("connection_id", connectionID),
			slog.String("user_id", userID),
		),
		ctx: context.Background(),
	}
}

// ContextLogger adds request or connection context to log messages
type ContextLogger struct {
	logger  *Logger
	slogger *slog.Logger
	ctx     context.Context
}

func (cl *ContextLogger) logf(level slog.Level, format string, args ...any) {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	cl.slogger.LogAttrs(cl.ctx, level, SanitizeLogMessage(message))
}

// Debug logs a debug-level message with context
func (cl *ContextLogger) Debug(format string, args ...any) {
	if cl.logger.level > LogLevelDebug {
		return
	}
	cl.logf(slog.LevelDebug, format, args...)
}

// Info logs an info-level message with context
func (cl *ContextLogger) Info(format string, args ...any) {
	if cl.logger.level > LogLevelInfo {
		return
	}
	cl.logf(slog.LevelInfo, format, args...)
}

// Warn logs a warning-level message with context
func (cl *ContextLogger) Warn(format string, args ...any) {
	if cl.logger.level > LogLevelWarn {
		return
	}
	cl.logf(slog.LevelWarn, format, args...)
}

// Error logs an error-level message with context
func (cl *ContextLogger) Error(format string, args ...any) {
	if cl.logger.level > LogLevelError {
		return
	}
	cl.logf(slog.LevelError, format, args...)
}

// DebugCtx logs a debug message with additional structured attributes
func (cl *ContextLogger) DebugCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(cl.ctx, slog.LevelDebug, msg, attrs...)
}

// InfoCtx logs an info message with additional structured attributes
func (cl *ContextLogger) InfoCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(cl.ctx, slog.LevelInfo, msg, attrs...)
}

// WarnCtx logs a warning message with additional structured attributes
func (cl *ContextLogger) WarnCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(cl.ctx, slog.LevelWarn, msg, attrs...)
}

// ErrorCtx logs an error message with additional structured attributes
func (cl *ContextLogger) ErrorCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(cl.ctx, slog.LevelError, msg, attrs...)
}

// WithAttrs returns a new ContextLogger with additional attributes
func (cl *ContextLogger) WithAttrs(attrs ...slog.Attr) *ContextLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &ContextLogger{
		logger:  cl.logger,
		slogger: cl.slogger.With(args...),
		ctx:     cl.ctx,
	}
}
