package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pageza/nutriado/backend/internal/gateway"
)

// Health reports liveness plus the state of the upstream and Redis wiring.
// Both redis and provider may be nil.
func Health(provider gateway.Provider, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "provider": "none", "redis": "disabled"}
		if provider != nil {
			status["provider"] = provider.Name()
		}

		code := http.StatusOK
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["status"] = "degraded"
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			} else {
				status["redis"] = "ok"
			}
		}
		c.JSON(code, status)
	}
}
