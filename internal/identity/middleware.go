package identity

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GinMiddleware decodes the bearer token and injects the caller identity.
// Requests without a valid token are rejected before reaching handlers.
func GinMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "unauthorized"}})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		var parsed claims
		_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "unauthorized"}})
			return
		}

		userID, err := snowflake.ParseString(strings.TrimSpace(parsed.UserID))
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "unauthorized"}})
			return
		}
		role, ok := ParseRole(parsed.Role)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "unauthorized"}})
			return
		}

		ctx := WithIdentity(c.Request.Context(), Identity{ID: userID, Role: role})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects callers whose role does not match.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := FromContext(c.Request.Context())
		if err != nil || id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"type": "forbidden", "message": "forbidden"}})
			return
		}
		c.Next()
	}
}
