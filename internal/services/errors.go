package services

import (
	"errors"
	"net/http"

	huddle_errors "huddle-chat/pkg/errors"
)

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, huddle_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, huddle_errors.ErrNotAuthenticated), errors.Is(err, huddle_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, huddle_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, huddle_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, huddle_errors.ErrAlreadyExists), errors.Is(err, huddle_errors.ErrConflict), errors.Is(err, huddle_errors.ErrAborted):
		return http.StatusConflict
	case errors.Is(err, huddle_errors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, huddle_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, huddle_errors.ErrServiceUnavailable), errors.Is(err, huddle_errors.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode is the machine-readable code sent next to an error message.
func ErrorCode(err error) string {
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Silent reports errors that non-critical actions swallow: the caller is
// signed out or the target vanished.
func Silent(err error) bool {
	return errors.Is(err, huddle_errors.ErrNotAuthenticated) || errors.Is(err, huddle_errors.ErrNotFound)
}
