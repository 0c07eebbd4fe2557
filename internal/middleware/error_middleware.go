package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	"huddle-chat/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error,
// mapping it to a status and code.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	log := logger.OrNop(l).Named("http")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := services.HTTPStatus(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			log.Ctx(c.Request.Context()).Errorf("request error: %v", err)
			message = http.StatusText(status)
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, httpdto.NewErrorResponse(message, services.ErrorCode(err)))
	}
}
