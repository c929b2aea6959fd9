package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lodgeon/keybridge/internal/auth"
	"github.com/lodgeon/keybridge/internal/registry"
)

const (
	apiKeyHeader     = "X-API-Key"
	agentIDHeader    = "X-Agent-ID"
	agentTokenHeader = "X-Agent-Token"
)

func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ValidateToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("hotel_id", claims.HotelID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// AgentAuth authenticates a desk agent by ID and bearer token and stores the
// verified agent on the context.
func AgentAuth(agents *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID := c.GetHeader(agentIDHeader)
		token := c.GetHeader(agentTokenHeader)
		if agentID == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing agent credentials"})
			return
		}

		agent, err := agents.VerifyToken(c.Request.Context(), agentID, token)
		if err != nil {
			slog.Warn("Agent authentication failed",
				"agent_id", agentID,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid agent credentials"})
			return
		}

		c.Set("agent_id", agent.ID)
		c.Set("hotel_id", agent.HotelID)
		c.Next()
	}
}

func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			slog.Warn("Admin API key not configured, rejecting request",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin API is not configured",
			})
			return
		}

		providedKey := c.GetHeader(apiKeyHeader)
		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			slog.Warn("Invalid API key attempt",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Next()
	}
}
