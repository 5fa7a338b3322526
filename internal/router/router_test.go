package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/pageza/nutriado/backend/config"
	"github.com/pageza/nutriado/backend/internal/chat"
	"github.com/pageza/nutriado/backend/internal/logging"
	"github.com/pageza/nutriado/backend/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetupRouter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := config.Default()
	cfg.RateLimit = 1
	log := logging.Discard()
	deps := Deps{
		Redis: client,
		Chat:  chat.NewService(nil, session.NewRedisStore(client, time.Hour), log),
	}
	r := SetupRouter(cfg, deps, log)

	t.Run("should serve health", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("should rate limit the proxy", func(t *testing.T) {
		codes := []int{}
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ia", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests}, codes)
	})

	t.Run("should not trust forwarded headers or session ids for limiting", func(t *testing.T) {
		codes := []int{}
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/ia", nil)
			req.RemoteAddr = "198.51.100.7:4321"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
			req.Header.Set("X-Session-ID", fmt.Sprintf("visitor-%d", i))
			r.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	})

	t.Run("should not limit the render route", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/render", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("should return 404 for unknown routes", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
