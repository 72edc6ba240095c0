package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/platform/ctxutil"
)

const headerUserID = "X-User-Id"

// AttachRequestContext reads the caller identity set by the fronting proxy.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &ctxutil.RequestData{}
		if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				rd.UserID = id
			}
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
