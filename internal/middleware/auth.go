package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hbl306/phongtro57-chat/internal/models"
	"github.com/hbl306/phongtro57-chat/internal/services"
)

const identityKey = "identity"

// Auth resolves the bearer credential on every request through the identity
// service, so role changes take effect immediately.
func Auth(identity *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing or invalid"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		ident, err := identity.Resolve(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// RequireAgent rejects callers whose live role is not support staff.
func RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := CurrentIdentity(c)
		if ident == nil || !ident.Role.IsAgent() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: agent role required"})
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the resolved identity, or nil outside Auth.
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil
	}
	ident, ok := v.(*models.Identity)
	if !ok {
		return nil
	}
	return ident
}
