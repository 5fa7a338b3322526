package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pageza/nutriado/backend/config"
	"github.com/pageza/nutriado/backend/internal/chat"
	"github.com/pageza/nutriado/backend/internal/database"
	"github.com/pageza/nutriado/backend/internal/gateway"
	"github.com/pageza/nutriado/backend/internal/logging"
	"github.com/pageza/nutriado/backend/internal/router"
	"github.com/pageza/nutriado/backend/internal/server"
	"github.com/pageza/nutriado/backend/internal/session"
)

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("Failed to load configuration")
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(config.GetEnvironment().GinMode())

	provider, err := gateway.New(cfg, log)
	switch {
	case errors.Is(err, gateway.ErrMissingWebhookURL):
		// The proxy answers 500 per request, as the widget expects.
		log.Warn("N8N_WEBHOOK_URL is not set; chat requests will fail")
	case err != nil:
		log.WithError(err).Fatal("Failed to create upstream provider")
	default:
		log.WithField("provider", provider.Name()).Info("Upstream provider ready")
	}

	var (
		redisClient *redis.Client
		store       session.Store
	)
	if cfg.RedisEnabled() {
		redisClient, err = database.NewRedisClient(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		store = session.NewRedisStore(redisClient, cfg.SessionTTL)
	} else {
		log.Warn("Redis not configured; sessions are kept in memory")
		store = session.NewMemoryStore(cfg.SessionTTL)
	}

	srv := server.New(cfg, router.Deps{
		Provider: provider,
		Redis:    redisClient,
		Chat:     chat.NewService(provider, store, log),
	}, log)

	// Channel to listen for errors coming from the server
	errChan := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		errChan <- srv.Start()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal or error
	select {
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Fatal("Server error")
		}
		return
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received signal")
	}

	// Gracefully shutdown the server
	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown error")
		return
	}
	log.Info("Server stopped")
}
