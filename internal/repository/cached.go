package repository

import (
	"context"
	"time"

	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/user"
	"huddle-chat/pkg/logger"
)

// UserCache is a read-through cache for directory entries. Get reports a
// miss as (nil, nil).
type UserCache interface {
	GetUser(ctx context.Context, userID string) (*user.User, error)
	SetUser(ctx context.Context, u *user.User) error
	InvalidateUser(ctx context.Context, userID string) error
}

type ChannelCache interface {
	GetChannel(ctx context.Context, channelID string) (*channel.Channel, error)
	SetChannel(ctx context.Context, ch *channel.Channel) error
	InvalidateChannel(ctx context.Context, channelID string) error
}

// CachedUserRepository serves Get from the cache and drops the entry on
// every write. Cache failures fall through to the store.
type CachedUserRepository struct {
	UserRepository
	cache  UserCache
	logger *logger.Logger
}

func NewCachedUserRepository(inner UserRepository, cache UserCache, l *logger.Logger) *CachedUserRepository {
	return &CachedUserRepository{
		UserRepository: inner,
		cache:          cache,
		logger:         logger.OrNop(l).Named("repository.users.cache"),
	}
}

func (r *CachedUserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	if u, err := r.cache.GetUser(ctx, id); err != nil {
		r.logger.Warnf("user cache read %s: %v", id, err)
	} else if u != nil {
		return u, nil
	}
	u, err := r.UserRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetUser(ctx, u); err != nil {
		r.logger.Warnf("user cache write %s: %v", id, err)
	}
	return u, nil
}

func (r *CachedUserRepository) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	out, err := r.UserRepository.Upsert(ctx, u)
	if u != nil {
		r.invalidate(ctx, u.ID)
	}
	return out, err
}

func (r *CachedUserRepository) UpdatePresence(ctx context.Context, id string, online bool, status domain.UserStatus, lastSeen time.Time) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.UpdatePresence(ctx, id, online, status, lastSeen)
}

func (r *CachedUserRepository) SetAvatar(ctx context.Context, id, url string) error {
	defer r.invalidate(ctx, id)
	return r.UserRepository.SetAvatar(ctx, id, url)
}

func (r *CachedUserRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.InvalidateUser(ctx, id); err != nil {
		r.logger.Warnf("user cache invalidate %s: %v", id, err)
	}
}

// CachedChannelRepository caches channel metadata for Get. Message counters
// are written by the message repository and may lag by the cache TTL.
type CachedChannelRepository struct {
	ChannelRepository
	cache  ChannelCache
	logger *logger.Logger
}

func NewCachedChannelRepository(inner ChannelRepository, cache ChannelCache, l *logger.Logger) *CachedChannelRepository {
	return &CachedChannelRepository{
		ChannelRepository: inner,
		cache:             cache,
		logger:            logger.OrNop(l).Named("repository.channels.cache"),
	}
}

func (r *CachedChannelRepository) Get(ctx context.Context, id string) (*channel.Channel, error) {
	if ch, err := r.cache.GetChannel(ctx, id); err != nil {
		r.logger.Warnf("channel cache read %s: %v", id, err)
	} else if ch != nil {
		return ch, nil
	}
	ch, err := r.ChannelRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetChannel(ctx, ch); err != nil {
		r.logger.Warnf("channel cache write %s: %v", id, err)
	}
	return ch, nil
}

func (r *CachedChannelRepository) SetTopic(ctx context.Context, id, topic string) error {
	defer r.invalidate(ctx, id)
	return r.ChannelRepository.SetTopic(ctx, id, topic)
}

func (r *CachedChannelRepository) AddMember(ctx context.Context, channelID string, m channel.Member) (bool, error) {
	defer r.invalidate(ctx, channelID)
	return r.ChannelRepository.AddMember(ctx, channelID, m)
}

func (r *CachedChannelRepository) RemoveMember(ctx context.Context, channelID, userID string) (bool, error) {
	defer r.invalidate(ctx, channelID)
	return r.ChannelRepository.RemoveMember(ctx, channelID, userID)
}

func (r *CachedChannelRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.InvalidateChannel(ctx, id); err != nil {
		r.logger.Warnf("channel cache invalidate %s: %v", id, err)
	}
}
