package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/repository"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

const MaxTopicLength = 250

var channelName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,79}$`)

// NormalizeChannelName lowercases name, drops a leading '#' and turns
// inner whitespace into dashes.
func NormalizeChannelName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "#")))
	name = strings.Join(strings.Fields(name), "-")
	if !channelName.MatchString(name) {
		return "", fmt.Errorf("channel name %q: %w", name, huddle_errors.ErrInvalidInput)
	}
	return name, nil
}

type ChannelService struct {
	channels repository.ChannelRepository
	users    repository.UserRepository
	access   *Access
	logger   *logger.Logger
}

func NewChannelService(channels repository.ChannelRepository, users repository.UserRepository, access *Access, l *logger.Logger) *ChannelService {
	return &ChannelService{
		channels: channels,
		users:    users,
		access:   access,
		logger:   logger.OrNop(l).Named("services.channels"),
	}
}

// Create makes a channel owned by the actor. The normalized name doubles
// as the channel id, so names are unique. Guests cannot create channels.
func (s *ChannelService) Create(ctx context.Context, name, topic string) (*channel.Channel, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if id.Role == domain.UserRoleGuest {
		return nil, fmt.Errorf("create channel: %w", huddle_errors.ErrForbidden)
	}
	name, err = NormalizeChannelName(name)
	if err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if len(topic) > MaxTopicLength {
		return nil, fmt.Errorf("topic: %w", huddle_errors.ErrTooLarge)
	}

	ch, err := s.channels.Create(ctx, &channel.Channel{ID: name, Name: name, Topic: topic}, s.member(ctx, id))
	if err != nil {
		return nil, err
	}
	s.logger.Ctx(ctx).Infof("channel %s created", ch.ID)
	return ch, nil
}

func (s *ChannelService) Get(ctx context.Context, channelID string) (*channel.Channel, error) {
	return s.channels.Get(ctx, channelID)
}

func (s *ChannelService) List(ctx context.Context) ([]*channel.Channel, error) {
	if _, err := Actor(ctx); err != nil {
		return nil, err
	}
	return s.channels.List(ctx)
}

// Join adds the actor to a channel. Joining twice is a no-op.
func (s *ChannelService) Join(ctx context.Context, channelID string) (bool, error) {
	id, err := Actor(ctx)
	if err != nil {
		return false, err
	}
	return s.channels.AddMember(ctx, channelID, s.member(ctx, id))
}

func (s *ChannelService) Leave(ctx context.Context, channelID string) (bool, error) {
	id, err := Actor(ctx)
	if err != nil {
		return false, err
	}
	if _, err := s.channels.Get(ctx, channelID); err != nil {
		return false, err
	}
	return s.channels.RemoveMember(ctx, channelID, id.UserID)
}

func (s *ChannelService) SetTopic(ctx context.Context, channelID, topic string) error {
	id, err := Actor(ctx)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(topic)) > MaxTopicLength {
		return fmt.Errorf("topic: %w", huddle_errors.ErrTooLarge)
	}
	if err := s.access.CanModerate(ctx, id.UserID, channelID); err != nil {
		return err
	}
	return s.channels.SetTopic(ctx, channelID, topic)
}

func (s *ChannelService) Members(ctx context.Context, channelID string) ([]*channel.Member, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, id.UserID, domain.ChannelTarget(channelID)); err != nil {
		return nil, err
	}
	return s.channels.ListMembers(ctx, channelID)
}

// member snapshots the actor's profile for a membership record, preferring
// the directory entry over the token claims.
func (s *ChannelService) member(ctx context.Context, id *auth.Identity) channel.Member {
	m := channel.Member{UserID: id.UserID, DisplayName: id.DisplayName, AvatarURL: id.AvatarURL}
	u, err := s.users.Get(ctx, id.UserID)
	if err == nil {
		m.DisplayName = u.Label()
		m.AvatarURL = u.AvatarURL
	} else if !errors.Is(err, huddle_errors.ErrNotFound) {
		s.logger.Ctx(ctx).Warnf("profile of %s unavailable: %v", id.UserID, err)
	}
	return m
}
