package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/loopboard/realtime/auth"
	"github.com/loopboard/realtime/internal/config"
	"github.com/loopboard/realtime/internal/slogging"
)

// Server wires the hub to its two HTTP surfaces: the public /ws endpoint
// browsers connect to, and the /internal API the task-management backend
// calls to push events into the hub.
type Server struct {
	hub            *Hub
	tokenValidator *auth.TokenValidator
	internalAPIKey string
	metricsEnabled bool
	redis          *redis.Client
	users          UserDirectory
	wsConfig       config.WebSocketConfig
	logger         *slogging.Logger
}

// NewServer assembles the HTTP layer. redisClient and users may be nil when
// the corresponding backends are not configured; they only feed the health
// endpoint and call enrichment.
func NewServer(cfg *config.Config, hub *Hub, tokenValidator *auth.TokenValidator, redisClient *redis.Client, users UserDirectory) *Server {
	return &Server{
		hub:            hub,
		tokenValidator: tokenValidator,
		internalAPIKey: cfg.Auth.InternalAPIKey,
		metricsEnabled: cfg.Metrics.Enabled,
		redis:          redisClient,
		users:          users,
		wsConfig:       cfg.WebSocket,
		logger:         slogging.Get(),
	}
}

// Hub exposes the registry, mostly for tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// RegisterHandlers mounts all routes on a gin engine.
func (s *Server) RegisterHandlers(r *gin.Engine) {
	r.GET("/healthz", s.HandleHealthz)
	if s.metricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/ws", s.HandleWS)

	internal := r.Group("/internal")
	internal.Use(s.internalAuthMiddleware())
	internal.POST("/events", s.HandleIngestEvent)
	internal.POST("/users/:user_id/notify", s.HandleNotifyUser)
	internal.GET("/presence", s.HandleGetPresence)
	internal.GET("/stats", s.HandleStats)
}
