// Package handler exposes the chat services over HTTP. Handlers decode the
// request, call one service method and wrap the result in an httpdto
// envelope. Errors are attached to the gin context and rendered by
// middleware.ErrorHandler.
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"huddle-chat/internal/transport/httpdto"
	huddle_errors "huddle-chat/pkg/errors"
)

const defaultSuggestLimit = 8

func ok[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(data))
}

func created[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(data))
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// bind decodes the JSON body into dst. Binding failures are input errors.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, fmt.Errorf("invalid request: %w: %v", huddle_errors.ErrInvalidInput, err))
		return false
	}
	return true
}

func parseLimit(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit %q: %w", value, huddle_errors.ErrInvalidInput)
	}
	return n, nil
}
