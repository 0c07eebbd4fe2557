package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"huddle-chat/pkg/logger"
)

func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	log := logger.OrNop(l).Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Ctx(c.Request.Context()).With(
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		).Infof("%s %s %d", method, path, c.Writer.Status())
	}
}
