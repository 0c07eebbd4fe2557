package stream

import (
	"fmt"
	"sort"
	"time"

	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/domain/user"
	huddle_errors "huddle-chat/pkg/errors"
)

// Selection is what the user is looking at: a channel, or a DM with a peer.
// For DMs ID holds the peer's user id; the conversation id depends on who is
// signed in.
type Selection struct {
	Kind domain.TargetKind `json:"kind"`
	ID   string            `json:"id"`
}

func SelectChannel(channelID string) Selection {
	return Selection{Kind: domain.TargetChannel, ID: channelID}
}

func SelectDM(peerID string) Selection {
	return Selection{Kind: domain.TargetDM, ID: peerID}
}

func (s Selection) Empty() bool {
	return s.ID == ""
}

// Target resolves the selection for the signed-in user self.
func (s Selection) Target(self string) (domain.Target, error) {
	switch {
	case s.Empty():
		return domain.Target{}, fmt.Errorf("empty selection: %w", huddle_errors.ErrInvalidInput)
	case s.Kind == domain.TargetChannel:
		return domain.ChannelTarget(s.ID), nil
	case s.Kind == domain.TargetDM:
		if self == "" {
			return domain.Target{}, huddle_errors.ErrNotAuthenticated
		}
		return domain.DMTarget(conversation.ID(self, s.ID)), nil
	default:
		return domain.Target{}, fmt.Errorf("selection kind %q: %w", s.Kind, huddle_errors.ErrInvalidInput)
	}
}

// MessageView is a message ready for display. Author fields are refreshed
// from the user directory when the author is known there.
type MessageView struct {
	message.Message
	AuthorOnline bool `json:"authorOnline"`
	Mine         bool `json:"mine"`
	Edited       bool `json:"edited"`
}

// CreatedAt is the timestamp used for ordering and day grouping.
func CreatedAt(v MessageView) *time.Time {
	return v.Message.CreatedAt
}

// BuildViews maps msgs into views for self, ordered by creation time.
// Messages whose timestamp is still pending sort last.
func BuildViews(msgs []*message.Message, directory map[string]*user.User, self string) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		v := MessageView{
			Message: *m,
			Mine:    self != "" && m.AuthorID == self,
			Edited:  m.Edited(),
		}
		if u, ok := directory[m.AuthorID]; ok {
			if label := u.Label(); label != "" {
				v.AuthorName = label
			}
			if u.AvatarURL != "" {
				v.AuthorAvatar = u.AvatarURL
			}
			v.AuthorOnline = u.Online
		}
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Message.CreatedAt, views[j].Message.CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return views
}
