package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole is the declarative role gate: it runs before the handler body,
// so handlers never repeat inline role conditionals.
func (m *AuthMiddleware) RequireRole(required ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(required))

	for _, r := range required {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}

		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "forbidden",
					"message": "Access denied",
				},
			})
			return
		}
		c.Next()
	}
}
