package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/rbac"
)

// RequireUser ensures the caller authenticated as a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.PrincipalFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		if principal.Kind != auth.PrincipalUser {
			c.JSON(http.StatusForbidden, gin.H{"error": "User credentials required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireApplication ensures the caller authenticated with application credentials.
func RequireApplication() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.PrincipalFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		if principal.Kind != auth.PrincipalApplication {
			c.JSON(http.StatusForbidden, gin.H{"error": "Application credentials required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin ensures the user is an admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.PrincipalFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		isAdmin, err := rbac.IsAdmin(principal.Username())
		if err != nil || principal.Kind != auth.PrincipalUser || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
