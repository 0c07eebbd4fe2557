package services

import (
	"context"

	"huddle-chat/internal/auth"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type ctxKey string

var identityKey ctxKey = "identity"

// WithIdentity stores the caller in ctx. The user id is also stored under
// the logger's key so request logs carry it.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, logger.UserIdKey, id.UserID)
}

func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	return id, ok && id != nil
}

// Actor returns the caller stored in ctx or ErrNotAuthenticated.
func Actor(ctx context.Context) (*auth.Identity, error) {
	if id, ok := IdentityFromContext(ctx); ok {
		return id, nil
	}
	return nil, huddle_errors.ErrNotAuthenticated
}
