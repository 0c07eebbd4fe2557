package services

import (
	"time"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/repository"
	"huddle-chat/pkg/logger"
)

type Deps struct {
	Messages      repository.MessageRepository
	Channels      repository.ChannelRepository
	Users         repository.UserRepository
	Conversations repository.ConversationRepository

	Verifier *auth.Verifier
	Limiter  Limiter
	Avatars  AvatarStore
	Presence PresenceTracker

	// Location is the zone timelines are grouped in. Nil means UTC.
	Location *time.Location
	Logger   *logger.Logger
}

// Services is the application layer shared by the HTTP handlers and the
// WebSocket sessions.
type Services struct {
	Access   *Access
	Chat     *ChatService
	Channels *ChannelService
	Users    *UserService

	deps   Deps
	logger *logger.Logger
}

func New(d Deps) *Services {
	if d.Location == nil {
		d.Location = time.UTC
	}
	l := logger.OrNop(d.Logger)
	access := NewAccess(d.Channels)
	return &Services{
		Access:   access,
		Chat:     NewChatService(d.Messages, d.Users, d.Conversations, access, d.Limiter, l),
		Channels: NewChannelService(d.Channels, d.Users, access, l),
		Users:    NewUserService(d.Users, d.Channels, d.Avatars, d.Presence, l),
		deps:     d,
		logger:   l,
	}
}

func (s *Services) Verifier() *auth.Verifier {
	return s.deps.Verifier
}
