package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loopboard/realtime/internal/slogging"
)

// ErrorResponse is the JSON error envelope for the HTTP surfaces.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// internalAuthMiddleware gates /internal routes on the shared API key the
// task-management backend is provisioned with.
func (s *Server) internalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "Missing bearer token",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.internalAPIKey)) != 1 {
			s.logger.Warn("[internal] rejected request with bad API key from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "Invalid API key",
			})
			return
		}
		c.Next()
	}
}

// IngestEventRequest is the body of POST /internal/events.
type IngestEventRequest struct {
	WorkspaceID   string          `json:"workspaceId" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	Payload       json.RawMessage `json:"payload"`
	ExcludeUserID string          `json:"excludeUserId"`
}

// HandleIngestEvent accepts a domain event from the backend and broadcasts
// it to the workspace. 202 means accepted for fanout; zero subscribers is
// not an error, the workspace may simply have nobody looking at it.
func (s *Server) HandleIngestEvent(c *gin.Context) {
	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: err.Error(),
		})
		return
	}

	eventType := MessageType(req.Type)
	if !eventType.IsDomainEvent() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: fmt.Sprintf("type %q is not a broadcastable domain event", req.Type),
		})
		return
	}

	delivered := s.hub.Broadcast(req.WorkspaceID, eventType, req.Payload, req.ExcludeUserID)
	slogging.GetContextLogger(c).Debug("[internal] %s ingested for workspace %s, delivered to %d connections",
		req.Type, req.WorkspaceID, delivered)
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// NotifyUserRequest is the body of POST /internal/users/:user_id/notify.
// Type defaults to notification:created.
type NotifyUserRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// HandleNotifyUser pushes an event to one user's connections. Always 202 on
// a valid request; an offline recipient is steady state, not a failure, and
// the backend keeps its own notification inbox for them.
func (s *Server) HandleNotifyUser(c *gin.Context) {
	userID := c.Param("user_id")

	var req NotifyUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: err.Error(),
		})
		return
	}

	eventType := MessageTypeNotificationCreated
	if req.Type != "" {
		eventType = MessageType(req.Type)
		if !isUserPushable(eventType) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:            "invalid_request",
				ErrorDescription: fmt.Sprintf("type %q cannot be pushed to a user", req.Type),
			})
			return
		}
	}

	delivered := s.hub.BroadcastToUser(userID, eventType, req.Payload)
	slogging.GetContextLogger(c).Debug("[internal] %s pushed to user %s, delivered to %d connections",
		eventType, userID, delivered)
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// isUserPushable reports whether the backend may push this type directly to
// a user. Protocol frames the server owns, like connected and error, are
// off limits.
func isUserPushable(t MessageType) bool {
	switch t {
	case MessageTypeConnected, MessageTypePong, MessageTypeError, MessageTypePresenceUpdate:
		return false
	}
	return t.IsServerOnly() || t.IsDomainEvent()
}

// HandleGetPresence resolves presence for a comma-separated batch of user
// IDs. Unknown users come back OFFLINE rather than being omitted, so the
// backend can render a member list in one call.
func (s *Server) HandleGetPresence(c *gin.Context) {
	raw := c.Query("user_ids")
	userIDs := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			userIDs = append(userIDs, trimmed)
		}
	}
	if len(userIDs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "user_ids query parameter is required",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"presence": s.hub.GetPresence(userIDs)})
}

// HandleStats returns a census of the registry.
func (s *Server) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Stats())
}

// HandleHealthz reports liveness plus the state of optional backends. The
// server stays healthy when a mirror backend is down; it just says so.
func (s *Server) HandleHealthz(c *gin.Context) {
	response := gin.H{"status": "ok"}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			response["redis"] = "unavailable"
		} else {
			response["redis"] = "ok"
		}
		cancel()
	}

	if s.users != nil {
		if pinger, ok := s.users.(interface{ Ping(context.Context) error }); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			if err := pinger.Ping(ctx); err != nil {
				response["postgres"] = "unavailable"
			} else {
				response["postgres"] = "ok"
			}
			cancel()
		}
	}

	c.JSON(http.StatusOK, response)
}
