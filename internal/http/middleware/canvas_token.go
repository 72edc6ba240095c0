package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const headerCanvasToken = "X-Canvas-Token"

// CanvasToken returns the Canvas access token forwarded with the request.
func CanvasToken(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerCanvasToken))
}
