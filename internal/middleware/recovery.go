package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callbridge-backend/pkg/logger"
	"callbridge-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Handler panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path))

				response.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
