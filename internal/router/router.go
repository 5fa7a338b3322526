// Package router wires middleware and handlers into a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/config"
	"github.com/pageza/nutriado/backend/internal/api"
	"github.com/pageza/nutriado/backend/internal/chat"
	"github.com/pageza/nutriado/backend/internal/gateway"
	"github.com/pageza/nutriado/backend/internal/middleware"
)

// Deps are the collaborators the routes need. Provider and Redis may be nil.
type Deps struct {
	Provider gateway.Provider
	Redis    *redis.Client
	Chat     *chat.Service
}

// SetupRouter configures the application routes
func SetupRouter(cfg *config.Config, deps Deps, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	// ClientIP keys the rate limiter, so forwarded headers count only from
	// configured proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.WithError(err).Warn("invalid TRUSTED_PROXIES, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	limiter := middleware.NewChatRateLimiter(deps.Redis, cfg.RateLimit, cfg.RateLimitWindow, log)
	if !limiter.Enabled() {
		log.Info("rate limiting disabled")
	}

	router.GET("/health", api.Health(deps.Provider, deps.Redis))

	// Widget proxy, kept at the path the widget already calls
	api.NewProxyHandler(deps.Provider, log).RegisterRoutes(router, limiter.Middleware())

	// API v1 routes
	v1 := router.Group("/api/v1")
	api.NewChatHandler(deps.Chat, limiter, log).RegisterRoutes(v1)
	api.RegisterRenderRoutes(v1)

	return router
}
