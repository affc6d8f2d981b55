package middleware

import (
	"net/http"
	"strings"

	"comerse-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionAuth authenticates dashboard requests with a Bearer session token
// and stores the resolved tenant in the Gin context under "tenant".
func SessionAuth(identity service.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		tenant, err := identity.Resolve(c.Request.Context(), service.Credential{SessionToken: tokenString})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("tenant", tenant)
		c.Next()
	}
}
