package huddle_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrAborted            = errors.New("transaction aborted after retries")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrClosed             = errors.New("closed")
	ErrRateLimited        = errors.New("rate limited")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}

// TimePtr returns a pointer to t, or nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
