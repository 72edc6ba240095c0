package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quizbridge-backend/internal/platform/ctxutil"
)

// RequireUser rejects requests that carry no caller identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid user id", "code": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}
