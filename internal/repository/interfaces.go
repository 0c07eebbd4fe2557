package repository

import (
	"context"
	"time"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/domain/user"
)

// MessageRef addresses a root message (ParentID empty) or a reply.
type MessageRef struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
}

func RootRef(id string) MessageRef {
	return MessageRef{ID: id}
}

func ReplyRef(rootID, replyID string) MessageRef {
	return MessageRef{ID: replyID, ParentID: rootID}
}

func (r MessageRef) IsReply() bool {
	return r.ParentID != ""
}

// ToggleResult reports the outcome of a reaction toggle. Skipped is set
// when the message no longer existed and nothing was written.
type ToggleResult struct {
	Added   bool `json:"added"`
	Count   int  `json:"count"`
	Skipped bool `json:"skipped,omitempty"`
}

type MessagesListener func(msgs []*message.Message, err error)

// MessageListener receives nil when the watched message does not exist.
type MessageListener func(msg *message.Message, err error)

type MessageRepository interface {
	GetMessageStream(ctx context.Context, target domain.Target, fn MessagesListener) (docstore.Unsubscribe, error)
	GetMessage(ctx context.Context, target domain.Target, ref MessageRef) (*message.Message, error)
	SendMessage(ctx context.Context, target domain.Target, m *message.Message) (*message.Message, error)
	EditMessage(ctx context.Context, target domain.Target, ref MessageRef, text string) error
	DeleteMessage(ctx context.Context, target domain.Target, ref MessageRef) error
	ToggleReaction(ctx context.Context, target domain.Target, ref MessageRef, emoji, userID string) (ToggleResult, error)

	SendReply(ctx context.Context, target domain.Target, rootID string, reply *message.Message) (*message.Message, error)
	WatchMessage(ctx context.Context, target domain.Target, ref MessageRef, fn MessageListener) (docstore.Unsubscribe, error)
	WatchReplies(ctx context.Context, target domain.Target, rootID string, fn MessagesListener) (docstore.Unsubscribe, error)
}

type ChannelRepository interface {
	Create(ctx context.Context, ch *channel.Channel, owner channel.Member) (*channel.Channel, error)
	Get(ctx context.Context, id string) (*channel.Channel, error)
	List(ctx context.Context) ([]*channel.Channel, error)
	Watch(ctx context.Context, fn func([]*channel.Channel, error)) (docstore.Unsubscribe, error)
	SetTopic(ctx context.Context, id, topic string) error

	AddMember(ctx context.Context, channelID string, m channel.Member) (bool, error)
	RemoveMember(ctx context.Context, channelID, userID string) (bool, error)
	GetMember(ctx context.Context, channelID, userID string) (*channel.Member, error)
	ListMembers(ctx context.Context, channelID string) ([]*channel.Member, error)
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*user.User, error)
	List(ctx context.Context) ([]*user.User, error)
	Watch(ctx context.Context, fn func([]*user.User, error)) (docstore.Unsubscribe, error)
	Upsert(ctx context.Context, u *user.User) (*user.User, error)
	UpdatePresence(ctx context.Context, id string, online bool, status domain.UserStatus, lastSeen time.Time) error
	SetAvatar(ctx context.Context, id, url string) error
}

type ConversationRepository interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*conversation.Conversation, error)
}
