package http

import (
	"strings"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter used by websocket clients.
func bearerToken(c *gin.Context, allowQuery bool) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

func authenticate(auth *app.AuthService, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request.Context(), bearerToken(c, allowQuery))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := app.Authorize(currentUser(c), roles...); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.User {
	v, _ := c.Get(userKey)
	user, _ := v.(domain.User)
	return user
}
