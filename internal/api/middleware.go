package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jon4hz/sweepcrew/internal/database"
)

const userContextKey = "user"

// requireAuth resolves the session cookie to a user and aborts with 401
// otherwise.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		user, err := s.auth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// requireAdmin aborts with 403 for non-admin users. Must run after
// requireAuth.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *database.User {
	return c.MustGet(userContextKey).(*database.User)
}
