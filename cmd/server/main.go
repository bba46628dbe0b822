package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/loopboard/realtime/api"
	"github.com/loopboard/realtime/auth"
	"github.com/loopboard/realtime/internal/config"
	"github.com/loopboard/realtime/internal/slogging"
	"github.com/loopboard/realtime/internal/telemetry"
	"github.com/loopboard/realtime/internal/userdir"
)

const (
	serviceName    = "loopboard-realtime"
	serviceVersion = "1.2.0"
)

const userCacheTTL = 5 * time.Minute

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            cfg.GetLogLevel(),
		IsDev:            cfg.Logging.IsDev,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.AlsoLogToConsole,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger := slogging.Get()
	defer func() {
		_ = logger.Close()
	}()

	logger.Info("starting %s %s", serviceName, serviceVersion)

	var telemetrySvc *telemetry.Service
	var hubMetrics *telemetry.HubMetrics
	if cfg.Metrics.Enabled {
		telemetrySvc, err = telemetry.NewService(serviceName, serviceVersion)
		if err != nil {
			logger.Error("failed to initialize telemetry: %v", err)
			os.Exit(1)
		}
		hubMetrics, err = telemetry.NewHubMetrics(telemetrySvc.Meter())
		if err != nil {
			logger.Error("failed to create hub metrics: %v", err)
			os.Exit(1)
		}
	}

	keyManager, err := auth.NewKeyManager(auth.KeyConfig{
		SigningMethod:  cfg.Auth.JWT.SigningMethod,
		Secret:         cfg.Auth.JWT.Secret,
		PublicKeyFile:  cfg.Auth.JWT.PublicKeyFile,
		PrivateKeyFile: cfg.Auth.JWT.PrivateKeyFile,
	})
	if err != nil {
		logger.Error("failed to initialize JWT keys: %v", err)
		os.Exit(1)
	}
	tokenValidator := auth.NewTokenValidator(keyManager)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelBoot()

	var redisClient *redis.Client
	var presenceStore api.PresenceStore
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(bootCtx).Err(); err != nil {
			// Presence mirroring degrades to log noise until Redis comes back
			logger.Warn("redis unreachable at startup: %v", err)
		} else {
			logger.Info("connected to redis at %s", cfg.Redis.Addr())
		}
		presenceStore = api.NewRedisPresenceStore(redisClient, cfg.WebSocket.PresenceTTL())
		defer func() {
			_ = redisClient.Close()
		}()
	}

	var users api.UserDirectory
	if cfg.Postgres.Enabled {
		directory, err := userdir.New(bootCtx, cfg.Postgres.ConnString(), userCacheTTL)
		if err != nil {
			logger.Warn("user directory unavailable, call enrichment disabled: %v", err)
		} else {
			logger.Info("connected to postgres at %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
			users = directory
			defer directory.Close()
		}
	}

	presence := api.NewPresenceTracker(presenceStore)
	hub := api.NewHub(cfg.WebSocket, presence, users, hubMetrics)
	server := api.NewServer(cfg, hub, tokenValidator, redisClient, users)

	if !cfg.Logging.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(slogging.LoggerMiddleware(), slogging.Recoverer())
	server.RegisterHandlers(router)

	httpServer := &http.Server{
		Addr:         cfg.Server.Interface + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("listening on %s", httpServer.Addr)
		var serveErr error
		if cfg.Server.TLSEnabled {
			serveErr = httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("server error: %v", serveErr)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Close WebSocket clients first so they see a going-away frame instead
	// of a dead listener.
	hub.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown: %v", err)
	}
	if telemetrySvc != nil {
		if err := telemetrySvc.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown incomplete: %v", err)
		}
	}

	logger.Info("server gracefully stopped")
}
