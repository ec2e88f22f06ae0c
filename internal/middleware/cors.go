package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"callbridge-backend/pkg/env"
)

// AllowedOrigins returns the set of origins permitted to call the API and to
// open signaling WebSockets
func AllowedOrigins() map[string]bool {
	origins := env.GetString("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = true
		}
	}
	return allowed
}

// CORSMiddleware handles cross-origin requests against the allowed origin list
func CORSMiddleware() gin.HandlerFunc {
	allowed := AllowedOrigins()

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
