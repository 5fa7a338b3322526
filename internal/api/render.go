package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/nutriado/backend/internal/render"
)

// RegisterRenderRoutes registers POST /render, which normalizes an
// arbitrary upstream body without calling the upstream
func RegisterRenderRoutes(router *gin.RouterGroup) {
	router.POST("/render", Render)
}

// Render handles POST /render. The fragment is only ever returned inside a
// JSON document; a reply field from the caller is not served as a page.
func Render(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Content-Type-Options", "nosniff")
	c.JSON(http.StatusOK, render.NormalizeBody(body))
}
