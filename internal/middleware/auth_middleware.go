package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
)

// AuthMiddleware verifies the bearer token and stores the caller's identity
// in the request context. The WebSocket route may pass the token as ?token=.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := verifier.Verify(BearerToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(services.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func BearerToken(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}
