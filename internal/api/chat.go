package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/internal/chat"
	"github.com/pageza/nutriado/backend/internal/middleware"
	"github.com/pageza/nutriado/backend/internal/session"
)

// ChatHandler handles session and chat requests
type ChatHandler struct {
	svc     *chat.Service
	limiter *middleware.RateLimiter
	log     logrus.FieldLogger
}

// NewChatHandler creates a new ChatHandler instance. limiter may be nil.
func NewChatHandler(svc *chat.Service, limiter *middleware.RateLimiter, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{svc: svc, limiter: limiter, log: log}
}

// RegisterRoutes registers the chat routes. The limiter only applies to
// the route that reaches the upstream.
func (h *ChatHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.PUT("/:id/profile", h.UpdateProfile)
	}
	router.POST("/chat", h.limiter.Middleware(), h.Chat)
}

// CreateSession handles POST /sessions
func (h *ChatHandler) CreateSession(c *gin.Context) {
	state, err := h.svc.CreateSession(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, state)
}

// GetSession handles GET /sessions/:id
func (h *ChatHandler) GetSession(c *gin.Context) {
	state, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	// Report the caller's chat budget without spending a request
	if h.limiter.Enabled() {
		remaining, reset, err := h.limiter.Remaining(c.Request.Context(), middleware.ClientKey(c))
		if err != nil {
			middleware.Logger(c, h.log).WithError(err).Warn("rate limit lookup failed")
		} else {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		}
	}
	c.JSON(http.StatusOK, state)
}

// DeleteSession handles DELETE /sessions/:id
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		h.internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateProfile handles PUT /sessions/:id/profile
func (h *ChatHandler) UpdateProfile(c *gin.Context) {
	var profile session.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, state, err := h.svc.SetProfile(c.Request.Context(), c.Param("id"), profile)
	if errors.Is(err, chat.ErrInvalidSessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"html":    reply.HTML,
		"tier":    reply.Tier,
		"ready":   state.Profile.Ready(),
		"session": state,
	})
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId" binding:"required"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.svc.Turn(c.Request.Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
	case err != nil:
		h.internalError(c, err)
	default:
		c.JSON(http.StatusOK, reply)
	}
}

func (h *ChatHandler) internalError(c *gin.Context, err error) {
	middleware.Logger(c, h.log).WithError(err).Error("chat request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
}
