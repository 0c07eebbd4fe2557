package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/presence"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/search"
	"huddle-chat/internal/storage"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

// AvatarStore is the object storage behind user avatars.
type AvatarStore interface {
	PresignAvatarUpload(ctx context.Context, userID, contentType string, sizeBytes int64) (storage.Upload, error)
	PutAvatar(ctx context.Context, userID, contentType string, body io.Reader) (string, error)
	FileURL(key string) string
}

// PresenceTracker is the subset of the presence store the services use.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) error
	SetAway(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	Connect(ctx context.Context, userID, clientID string) error
	Disconnect(ctx context.Context, userID, clientID string) error
	GetMany(ctx context.Context, userIDs []string) (map[string]*presence.Status, error)
}

type UserService struct {
	users    repository.UserRepository
	channels repository.ChannelRepository
	avatars  AvatarStore
	presence PresenceTracker
	logger   *logger.Logger
}

// NewUserService wires the directory. avatars and presence may be nil, in
// which case the operations that need them report ErrServiceUnavailable.
func NewUserService(users repository.UserRepository, channels repository.ChannelRepository, avatars AvatarStore, tracker PresenceTracker, l *logger.Logger) *UserService {
	return &UserService{
		users:    users,
		channels: channels,
		avatars:  avatars,
		presence: tracker,
		logger:   logger.OrNop(l).Named("services.users"),
	}
}

func (s *UserService) Directory(ctx context.Context) ([]*user.User, error) {
	if _, err := Actor(ctx); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, userID string) (*user.User, error) {
	return s.users.Get(ctx, userID)
}

// SyncProfile copies the token claims into the directory entry, creating
// it on first sign-in.
func (s *UserService) SyncProfile(ctx context.Context, id *auth.Identity) (*user.User, error) {
	if id == nil {
		return nil, huddle_errors.ErrNotAuthenticated
	}
	return s.users.Upsert(ctx, &user.User{
		ID:          id.UserID,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		AvatarURL:   id.AvatarURL,
		Role:        id.Role,
	})
}

// Suggest completes a composer or search query against channels and the
// directory. The actor is left out of user suggestions.
func (s *UserService) Suggest(ctx context.Context, query string, limit int) ([]search.Suggestion, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	others := make([]*user.User, 0, len(all))
	for _, u := range all {
		if u.ID != id.UserID {
			others = append(others, u)
		}
	}
	return search.Suggest(query, channels, others, limit), nil
}

func (s *UserService) PresignAvatar(ctx context.Context, contentType string, sizeBytes int64) (storage.Upload, error) {
	id, err := Actor(ctx)
	if err != nil {
		return storage.Upload{}, err
	}
	if s.avatars == nil {
		return storage.Upload{}, fmt.Errorf("avatars: %w", huddle_errors.ErrServiceUnavailable)
	}
	return s.avatars.PresignAvatarUpload(ctx, id.UserID, contentType, sizeBytes)
}

// UpdateAvatar attaches an object uploaded through a presigned URL. The key
// must live under the actor's avatar prefix.
func (s *UserService) UpdateAvatar(ctx context.Context, key string) (string, error) {
	id, err := Actor(ctx)
	if err != nil {
		return "", err
	}
	if s.avatars == nil {
		return "", fmt.Errorf("avatars: %w", huddle_errors.ErrServiceUnavailable)
	}
	if !storage.OwnsKey(id.UserID, key) {
		return "", fmt.Errorf("avatar key %q: %w", key, huddle_errors.ErrForbidden)
	}
	url := s.avatars.FileURL(key)
	if err := s.users.SetAvatar(ctx, id.UserID, url); err != nil {
		return "", err
	}
	return url, nil
}

// UploadAvatar stores body through the server and attaches it.
func (s *UserService) UploadAvatar(ctx context.Context, contentType string, body io.Reader) (string, error) {
	id, err := Actor(ctx)
	if err != nil {
		return "", err
	}
	if s.avatars == nil {
		return "", fmt.Errorf("avatars: %w", huddle_errors.ErrServiceUnavailable)
	}
	url, err := s.avatars.PutAvatar(ctx, id.UserID, contentType, body)
	if err != nil {
		return "", err
	}
	if err := s.users.SetAvatar(ctx, id.UserID, url); err != nil {
		return "", err
	}
	return url, nil
}

// SetStatus switches the actor between active, away and offline.
func (s *UserService) SetStatus(ctx context.Context, status string) error {
	id, err := Actor(ctx)
	if err != nil {
		return err
	}
	if s.presence == nil {
		return fmt.Errorf("presence: %w", huddle_errors.ErrServiceUnavailable)
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(domain.UserStatusActive), "online":
		return s.presence.SetOnline(ctx, id.UserID)
	case string(domain.UserStatusAway):
		return s.presence.SetAway(ctx, id.UserID)
	case presence.StatusOffline:
		return s.presence.SetOffline(ctx, id.UserID)
	default:
		return fmt.Errorf("status %q: %w", status, huddle_errors.ErrInvalidInput)
	}
}

// Presence returns live presence for userIDs. Users without a record are
// reported offline.
func (s *UserService) Presence(ctx context.Context, userIDs []string) (map[string]*presence.Status, error) {
	if _, err := Actor(ctx); err != nil {
		return nil, err
	}
	if s.presence == nil {
		return nil, fmt.Errorf("presence: %w", huddle_errors.ErrServiceUnavailable)
	}
	return s.presence.GetMany(ctx, userIDs)
}

func (s *UserService) Heartbeat(ctx context.Context) error {
	id, err := Actor(ctx)
	if err != nil {
		return err
	}
	if s.presence == nil {
		return nil
	}
	return s.presence.Heartbeat(ctx, id.UserID)
}
