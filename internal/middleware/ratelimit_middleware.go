package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	huddle_redis "huddle-chat/internal/redis"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	"huddle-chat/pkg/logger"
)

// LimitFunc is one of the RateLimiter checks, keyed by user id.
type LimitFunc func(ctx context.Context, userID string) (*huddle_redis.RateLimitResult, error)

// UserRateLimitMiddleware applies check to the authenticated caller. It
// must run after AuthMiddleware. A limiter outage lets the request through.
func UserRateLimitMiddleware(check LimitFunc, message string, l *logger.Logger) gin.HandlerFunc {
	log := logger.OrNop(l).Named("ratelimit")
	return func(c *gin.Context) {
		id, ok := services.IdentityFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		result, err := check(c.Request.Context(), id.UserID)
		if err != nil {
			log.Ctx(c.Request.Context()).Warnf("rate limiter unavailable: %v", err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(message, "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *huddle_redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
