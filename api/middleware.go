package api

import (
	"net/http"
	"strings"

	"dm-core/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// AuthMiddleware extracts the authenticated user id from a bearer token.
// The core trusts this id and performs no credential checks of its own.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		claims, err := tokens.Validate(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func MustUserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return v.(string)
}
