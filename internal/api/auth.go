package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware enforces bearer-token auth on mutating and query
// endpoints. The token comes from API_AUTH_TOKEN; when unset the
// middleware is a no-op so local development works out of the box,
// but a release-mode deployment without a token gets a loud warning.
func AuthMiddleware() gin.HandlerFunc {
	token := os.Getenv("API_AUTH_TOKEN")
	if token == "" {
		if gin.Mode() == gin.ReleaseMode {
			log.Println("[API] WARNING: API_AUTH_TOKEN not set, API endpoints are unauthenticated")
		}
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}

		provided := strings.TrimPrefix(header, "Bearer ")
		if provided == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must use Bearer scheme"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}
