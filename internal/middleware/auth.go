// auth.go provides token authentication middleware. The marketplace receives
// an author API token in a configurable header and resolves it to a user;
// token issuance and account management live outside this service.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
)

// CurrentUserKey is the gin.Context key under which the authenticated user is stored.
const CurrentUserKey = "current_user"

// TokenAuthMiddleware returns a Gin handler that authenticates requests via
// the API token header. The token may be sent bare or with a "Bearer " prefix.
// Requests without a valid token are rejected with 401.
func TokenAuthMiddleware(users *repositories.UserRepository, tokenHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(tokenHeader))
		token = strings.TrimPrefix(token, "Bearer ")

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		user, err := users.GetByAPIToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify credentials",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API token",
			})
			return
		}

		c.Set(CurrentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user stored by TokenAuthMiddleware,
// or nil for unauthenticated requests.
func CurrentUser(c *gin.Context) *models.User {
	value, exists := c.Get(CurrentUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
