package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/emoji"
	huddle_redis "huddle-chat/internal/redis"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/search"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

// MaxMessageLength bounds message text in characters, not bytes.
const MaxMessageLength = 4000

func checkText(text string) error {
	if text == "" {
		return fmt.Errorf("empty text: %w", huddle_errors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return fmt.Errorf("text longer than %d characters: %w", MaxMessageLength, huddle_errors.ErrTooLarge)
	}
	return nil
}

// Limiter throttles message sends and reaction toggles per user.
type Limiter interface {
	AllowMessage(ctx context.Context, userID string) (*huddle_redis.RateLimitResult, error)
	AllowReaction(ctx context.Context, userID string) (*huddle_redis.RateLimitResult, error)
}

type ChatService struct {
	messages      repository.MessageRepository
	users         repository.UserRepository
	conversations repository.ConversationRepository
	access        *Access
	limiter       Limiter
	logger        *logger.Logger
}

// NewChatService wires the message operations. limiter may be nil.
func NewChatService(messages repository.MessageRepository, users repository.UserRepository, conversations repository.ConversationRepository, access *Access, limiter Limiter, l *logger.Logger) *ChatService {
	return &ChatService{
		messages:      messages,
		users:         users,
		conversations: conversations,
		access:        access,
		limiter:       limiter,
		logger:        logger.OrNop(l).Named("services.chat"),
	}
}

func (s *ChatService) Send(ctx context.Context, target domain.Target, text string) (*message.Message, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanPost(ctx, id.UserID, target); err != nil {
		return nil, err
	}
	if target.IsDM() {
		peer, _ := conversation.Peer(target.ID, id.UserID)
		if _, err := s.users.Get(ctx, peer); err != nil {
			return nil, fmt.Errorf("dm peer %s: %w", peer, err)
		}
	}
	m, err := s.compose(ctx, id.UserID, text)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, id.UserID, s.limiterMessage); err != nil {
		return nil, err
	}
	return s.messages.SendMessage(ctx, target, m)
}

func (s *ChatService) Reply(ctx context.Context, target domain.Target, rootID, text string) (*message.Message, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanPost(ctx, id.UserID, target); err != nil {
		return nil, err
	}
	m, err := s.compose(ctx, id.UserID, text)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, id.UserID, s.limiterMessage); err != nil {
		return nil, err
	}
	return s.messages.SendReply(ctx, target, rootID, m)
}

// Edit replaces the text of a message. Only its author may edit it.
func (s *ChatService) Edit(ctx context.Context, target domain.Target, ref repository.MessageRef, text string) error {
	id, m, err := s.load(ctx, target, ref)
	if err != nil {
		return err
	}
	if m.AuthorID != id.UserID {
		return fmt.Errorf("edit %s: %w", ref.ID, huddle_errors.ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if err := checkText(text); err != nil {
		return fmt.Errorf("edit %s: %w", ref.ID, err)
	}
	if text == m.Text {
		return nil
	}
	return s.messages.EditMessage(ctx, target, ref, text)
}

// Delete removes a message. The author may always delete; channel
// moderators may delete anyone's message.
func (s *ChatService) Delete(ctx context.Context, target domain.Target, ref repository.MessageRef) error {
	id, m, err := s.load(ctx, target, ref)
	if err != nil {
		return err
	}
	if m.AuthorID != id.UserID {
		if target.IsDM() {
			return fmt.Errorf("delete %s: %w", ref.ID, huddle_errors.ErrForbidden)
		}
		if err := s.access.CanModerate(ctx, id.UserID, target.ID); err != nil {
			return err
		}
	}
	return s.messages.DeleteMessage(ctx, target, ref)
}

// React toggles the actor's reaction. raw may be a native emoji, a
// shortcode or a unified code point sequence.
func (s *ChatService) React(ctx context.Context, target domain.Target, ref repository.MessageRef, raw string) (repository.ToggleResult, error) {
	id, err := Actor(ctx)
	if err != nil {
		return repository.ToggleResult{}, err
	}
	e, err := emoji.Parse(raw)
	if err != nil {
		return repository.ToggleResult{}, err
	}
	if err := s.access.CanView(ctx, id.UserID, target); err != nil {
		return repository.ToggleResult{}, err
	}
	if err := s.allow(ctx, id.UserID, s.limiterReaction); err != nil {
		return repository.ToggleResult{}, err
	}
	res, err := s.messages.ToggleReaction(ctx, target, ref, e, id.UserID)
	if err != nil {
		return res, err
	}
	if res.Skipped {
		s.logger.Ctx(ctx).Debugf("reaction on missing message %s skipped", ref.ID)
	}
	return res, nil
}

func (s *ChatService) GetMessage(ctx context.Context, target domain.Target, ref repository.MessageRef) (*message.Message, error) {
	_, m, err := s.load(ctx, target, ref)
	return m, err
}

// ListConversations returns the actor's DMs, most recently active first.
func (s *ChatService) ListConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.conversations.ListForUser(ctx, id.UserID)
}

func (s *ChatService) load(ctx context.Context, target domain.Target, ref repository.MessageRef) (*auth.Identity, *message.Message, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.access.CanView(ctx, id.UserID, target); err != nil {
		return nil, nil, err
	}
	m, err := s.messages.GetMessage(ctx, target, ref)
	if err != nil {
		return nil, nil, err
	}
	return id, m, nil
}

// compose builds an outgoing message authored by userID, resolving
// mentions against the directory.
func (s *ChatService) compose(ctx context.Context, userID, text string) (*message.Message, error) {
	text = strings.TrimSpace(text)
	if err := checkText(text); err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}

	m := &message.Message{AuthorID: userID, Text: text}
	author, err := s.users.Get(ctx, userID)
	switch {
	case err == nil:
		m.AuthorName = author.Label()
		m.AuthorAvatar = author.AvatarURL
	case errors.Is(err, huddle_errors.ErrNotFound):
		if id, _ := IdentityFromContext(ctx); id != nil {
			m.AuthorName = id.DisplayName
			m.AuthorAvatar = id.AvatarURL
		}
	default:
		return nil, err
	}

	if strings.Contains(text, "@") {
		directory, err := s.users.List(ctx)
		if err != nil {
			s.logger.Ctx(ctx).Warnf("mentions not resolved: %v", err)
			directory = []*user.User{}
		}
		m.Mentions = search.ExtractMentions(text, directory)
	}
	return m, nil
}

func (s *ChatService) limiterMessage(ctx context.Context, userID string) (*huddle_redis.RateLimitResult, error) {
	return s.limiter.AllowMessage(ctx, userID)
}

func (s *ChatService) limiterReaction(ctx context.Context, userID string) (*huddle_redis.RateLimitResult, error) {
	return s.limiter.AllowReaction(ctx, userID)
}

// allow consults the limiter. A limiter failure lets the request through.
func (s *ChatService) allow(ctx context.Context, userID string, check func(context.Context, string) (*huddle_redis.RateLimitResult, error)) error {
	if s.limiter == nil {
		return nil
	}
	res, err := check(ctx, userID)
	if err != nil {
		s.logger.Ctx(ctx).Warnf("rate limiter unavailable: %v", err)
		return nil
	}
	if !res.Allowed {
		return fmt.Errorf("retry in %s: %w", res.ResetIn, huddle_errors.ErrRateLimited)
	}
	return nil
}
