package services

import (
	"context"
	"errors"
	"fmt"

	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/repository"
	huddle_errors "huddle-chat/pkg/errors"
)

// Access decides who may read, post to and moderate a channel or DM.
// Channel access follows membership; DM access follows the participants
// encoded in the conversation id.
type Access struct {
	channels repository.ChannelRepository
}

func NewAccess(channels repository.ChannelRepository) *Access {
	return &Access{channels: channels}
}

func (a *Access) CanView(ctx context.Context, userID string, target domain.Target) error {
	if userID == "" {
		return huddle_errors.ErrNotAuthenticated
	}
	if !target.Valid() {
		return fmt.Errorf("target: %w", huddle_errors.ErrInvalidInput)
	}
	if target.IsDM() {
		if _, ok := conversation.Peer(target.ID, userID); !ok {
			return fmt.Errorf("conversation %s: %w", target.ID, huddle_errors.ErrForbidden)
		}
		return nil
	}
	_, err := a.member(ctx, target.ID, userID)
	return err
}

func (a *Access) CanPost(ctx context.Context, userID string, target domain.Target) error {
	return a.CanView(ctx, userID, target)
}

func (a *Access) CanModerate(ctx context.Context, userID, channelID string) error {
	m, err := a.member(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !m.CanModerate() {
		return fmt.Errorf("moderate %s: %w", channelID, huddle_errors.ErrForbidden)
	}
	return nil
}

// member returns the membership of userID. A missing channel is
// ErrNotFound; a missing membership is ErrForbidden.
func (a *Access) member(ctx context.Context, channelID, userID string) (*channel.Member, error) {
	if _, err := a.channels.Get(ctx, channelID); err != nil {
		return nil, err
	}
	m, err := a.channels.GetMember(ctx, channelID, userID)
	if errors.Is(err, huddle_errors.ErrNotFound) {
		return nil, fmt.Errorf("%s is not a member of %s: %w", userID, channelID, huddle_errors.ErrForbidden)
	}
	return m, err
}
