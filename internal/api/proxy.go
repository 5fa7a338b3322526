// Package api holds the HTTP handlers of the chat backend.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/internal/gateway"
	"github.com/pageza/nutriado/backend/internal/middleware"
)

// maxRequestBytes caps the size of incoming request bodies
const maxRequestBytes = 1 << 20

// TimeoutDetail is the proxy error detail for upstream timeouts
const TimeoutDetail = "Upstream timeout (n8n tardó demasiado en responder)"

// ProxyHandler relays widget requests to the upstream unchanged apart from
// sanitizing
type ProxyHandler struct {
	provider gateway.Provider
	log      logrus.FieldLogger
}

// NewProxyHandler creates a ProxyHandler. A nil provider answers every
// request with the missing-webhook error.
func NewProxyHandler(provider gateway.Provider, log logrus.FieldLogger) *ProxyHandler {
	return &ProxyHandler{provider: provider, log: log}
}

// RegisterRoutes registers the proxy route. Every method is routed here so
// that non-POST requests get a 405 with Allow.
func (h *ProxyHandler) RegisterRoutes(router gin.IRouter, handlers ...gin.HandlerFunc) {
	router.Any("/api/ia", append(handlers, h.Proxy)...)
}

// Proxy handles POST /api/ia
func (h *ProxyHandler) Proxy(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	if h.provider == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing N8N_WEBHOOK_URL"})
		return
	}

	log := middleware.Logger(c, h.log)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		proxyError(c, log, err)
		return
	}

	payload, err := gateway.Sanitize(body)
	if err != nil {
		proxyError(c, log, err)
		return
	}

	resp, err := h.provider.Forward(c.Request.Context(), payload)
	if err != nil {
		proxyError(c, log, err)
		return
	}

	log.WithFields(logrus.Fields{
		"provider":   h.provider.Name(),
		"status":     resp.StatusCode,
		"session_id": payload.SessionID,
	}).Debug("proxied upstream response")

	c.Header("Cache-Control", "no-store")
	c.Data(resp.StatusCode, resp.ContentType, resp.Body)
}

func proxyError(c *gin.Context, log logrus.FieldLogger, err error) {
	detail := err.Error()
	if errors.Is(err, gateway.ErrUpstreamTimeout) {
		detail = TimeoutDetail
	}
	log.WithError(err).Error("proxy request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":  "Proxy error",
		"detail": detail,
	})
}
