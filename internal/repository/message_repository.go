package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/message"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type StoreMessageRepository struct {
	store  docstore.Store
	logger *logger.Logger
	now    func() time.Time
}

func NewMessageRepository(store docstore.Store, l *logger.Logger) *StoreMessageRepository {
	return &StoreMessageRepository{
		store:  store,
		logger: logger.OrNop(l).Named("repository.messages"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ MessageRepository = (*StoreMessageRepository)(nil)

func decodeMessage(snap docstore.Snapshot) (*message.Message, error) {
	var m message.Message
	if err := snap.DataTo(&m); err != nil {
		return nil, err
	}
	m.ID = snap.ID
	return &m, nil
}

func (r *StoreMessageRepository) decodeAll(snaps []docstore.Snapshot) []*message.Message {
	out := make([]*message.Message, 0, len(snaps))
	for _, s := range snaps {
		m, err := decodeMessage(s)
		if err != nil {
			r.logger.Warnf("skipping undecodable message %s: %v", s.Path, err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetMessageStream watches the root messages of target, oldest first.
func (r *StoreMessageRepository) GetMessageStream(ctx context.Context, target domain.Target, fn MessagesListener) (docstore.Unsubscribe, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("message stream: %w", huddle_errors.ErrInvalidInput)
	}
	q := docstore.Query{Collection: MessagesCollection(target), OrderBy: createdAtField}
	return r.store.WatchQuery(ctx, q, func(snaps []docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeAll(snaps), nil)
	})
}

func (r *StoreMessageRepository) GetMessage(ctx context.Context, target domain.Target, ref MessageRef) (*message.Message, error) {
	snap, err := r.store.Get(ctx, ref.Path(target))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, huddle_errors.ErrNotFound
	}
	return decodeMessage(snap)
}

// SendMessage stores a new root message and bumps the container's counters.
// A DM conversation document is created on its first message.
func (r *StoreMessageRepository) SendMessage(ctx context.Context, target domain.Target, m *message.Message) (*message.Message, error) {
	if !target.Valid() || m == nil || m.AuthorID == "" {
		return nil, fmt.Errorf("send message: %w", huddle_errors.ErrInvalidInput)
	}
	if strings.TrimSpace(m.Text) == "" {
		return nil, fmt.Errorf("send message: empty text: %w", huddle_errors.ErrInvalidInput)
	}

	out := *m
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.ParentID = ""
	out.ReplyCount = 0
	out.LastReplyAt = nil
	out.EditedAt = nil
	out.Reactions = nil
	out.Reactors = nil

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := r.now()
		out.CreatedAt = &now

		if target.IsDM() {
			if err := r.touchConversation(tx, target.ID, out.AuthorID, now); err != nil {
				return err
			}
		} else {
			if err := r.touchChannel(tx, target.ID, now); err != nil {
				return err
			}
		}
		return tx.Set(MessagePath(target, out.ID), &out)
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &out, nil
}

func (r *StoreMessageRepository) touchChannel(tx docstore.Tx, channelID string, now time.Time) error {
	snap, err := tx.Get(ChannelPath(channelID))
	if err != nil {
		return err
	}
	if !snap.Exists {
		return fmt.Errorf("channel %s: %w", channelID, huddle_errors.ErrNotFound)
	}
	var ch channel.Channel
	if err := snap.DataTo(&ch); err != nil {
		return err
	}
	return tx.Update(snap.Path, map[string]any{
		"messageCount":  ch.MessageCount + 1,
		"lastMessageAt": now,
	})
}

func (r *StoreMessageRepository) touchConversation(tx docstore.Tx, conversationID, authorID string, now time.Time) error {
	snap, err := tx.Get(ConversationPath(conversationID))
	if err != nil {
		return err
	}
	if snap.Exists {
		c, err := decodeConversation(snap)
		if err != nil {
			return err
		}
		if !c.Has(authorID) {
			return fmt.Errorf("%s is not a participant of %s: %w", authorID, conversationID, huddle_errors.ErrForbidden)
		}
		return tx.Update(snap.Path, map[string]any{"lastMessageAt": now})
	}

	peer, ok := conversation.Peer(conversationID, authorID)
	if !ok {
		return fmt.Errorf("%s is not a participant of %s: %w", authorID, conversationID, huddle_errors.ErrForbidden)
	}
	c := conversation.New(authorID, peer, now)
	c.LastMessageAt = &now
	return tx.Set(snap.Path, c)
}

func (r *StoreMessageRepository) EditMessage(ctx context.Context, target domain.Target, ref MessageRef, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("edit message: empty text: %w", huddle_errors.ErrInvalidInput)
	}
	now := r.now()
	err := r.store.Update(ctx, ref.Path(target), map[string]any{
		"text":     text,
		"editedAt": now,
	})
	if err != nil {
		return fmt.Errorf("edit message %s: %w", ref.ID, err)
	}
	return nil
}

// DeleteMessage removes a message. Deleting a root message also removes its
// replies; deleting a reply decrements the root's reply count. A message
// that is already gone is not an error.
func (r *StoreMessageRepository) DeleteMessage(ctx context.Context, target domain.Target, ref MessageRef) error {
	if ref.IsReply() {
		return r.deleteReply(ctx, target, ref)
	}

	replies, err := r.store.Query(ctx, docstore.Query{Collection: RepliesCollection(target, ref.ID)})
	if err != nil {
		return fmt.Errorf("delete message %s: list replies: %w", ref.ID, err)
	}

	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref.Path(target))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		if !target.IsDM() {
			chSnap, err := tx.Get(ChannelPath(target.ID))
			if err != nil {
				return err
			}
			if chSnap.Exists {
				var ch channel.Channel
				if err := chSnap.DataTo(&ch); err != nil {
					return err
				}
				if err := tx.Update(chSnap.Path, map[string]any{"messageCount": max(ch.MessageCount-1, 0)}); err != nil {
					return err
				}
			}
		}
		for _, reply := range replies {
			if err := tx.Delete(reply.Path); err != nil {
				return err
			}
		}
		return tx.Delete(snap.Path)
	})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", ref.ID, err)
	}
	return nil
}

func (r *StoreMessageRepository) deleteReply(ctx context.Context, target domain.Target, ref MessageRef) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref.Path(target))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		root, err := tx.Get(MessagePath(target, ref.ParentID))
		if err != nil {
			return err
		}
		if root.Exists {
			m, err := decodeMessage(root)
			if err != nil {
				return err
			}
			if err := tx.Update(root.Path, map[string]any{"replyCount": max(m.ReplyCount-1, 0)}); err != nil {
				return err
			}
		}
		return tx.Delete(snap.Path)
	})
	if err != nil {
		return fmt.Errorf("delete reply %s: %w", ref.ID, err)
	}
	return nil
}

// ToggleReaction flips userID's reaction inside a transaction so concurrent
// toggles never lose an update. A message that no longer exists is skipped
// without writing anything.
func (r *StoreMessageRepository) ToggleReaction(ctx context.Context, target domain.Target, ref MessageRef, emoji, userID string) (ToggleResult, error) {
	if emoji == "" || userID == "" {
		return ToggleResult{}, fmt.Errorf("toggle reaction: %w", huddle_errors.ErrInvalidInput)
	}

	var result ToggleResult
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = ToggleResult{}

		snap, err := tx.Get(ref.Path(target))
		if err != nil {
			return err
		}
		if !snap.Exists {
			result.Skipped = true
			return nil
		}
		m, err := decodeMessage(snap)
		if err != nil {
			return err
		}

		result.Added = m.ToggleReaction(emoji, userID)
		result.Count = m.Reactions[emoji]

		fields := map[string]any{
			"reactions": docstore.DeleteField,
			"reactors":  docstore.DeleteField,
		}
		if m.Reactions != nil {
			fields["reactions"] = m.Reactions
		}
		if m.Reactors != nil {
			fields["reactors"] = m.Reactors
		}
		return tx.Update(snap.Path, fields)
	})
	if err != nil {
		return ToggleResult{}, fmt.Errorf("toggle reaction on %s: %w", ref.ID, err)
	}
	if result.Skipped {
		r.logger.Infof("reaction toggle skipped, message %s is gone", ref.ID)
	}
	return result, nil
}

// SendReply stores a reply under rootID and bumps the root's reply counters
// and, for channels, the channel's lastReplyAt.
func (r *StoreMessageRepository) SendReply(ctx context.Context, target domain.Target, rootID string, reply *message.Message) (*message.Message, error) {
	if !target.Valid() || rootID == "" || reply == nil || reply.AuthorID == "" {
		return nil, fmt.Errorf("send reply: %w", huddle_errors.ErrInvalidInput)
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, fmt.Errorf("send reply: empty text: %w", huddle_errors.ErrInvalidInput)
	}

	out := *reply
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.ParentID = rootID
	out.ReplyCount = 0
	out.LastReplyAt = nil
	out.EditedAt = nil
	out.Reactions = nil
	out.Reactors = nil

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := r.now()
		out.CreatedAt = &now

		rootSnap, err := tx.Get(MessagePath(target, rootID))
		if err != nil {
			return err
		}
		if !rootSnap.Exists {
			return fmt.Errorf("root message %s: %w", rootID, huddle_errors.ErrNotFound)
		}
		root, err := decodeMessage(rootSnap)
		if err != nil {
			return err
		}
		if err := tx.Update(rootSnap.Path, map[string]any{
			"replyCount":  root.ReplyCount + 1,
			"lastReplyAt": now,
		}); err != nil {
			return err
		}

		if !target.IsDM() {
			chSnap, err := tx.Get(ChannelPath(target.ID))
			if err != nil {
				return err
			}
			if chSnap.Exists {
				if err := tx.Update(chSnap.Path, map[string]any{"lastReplyAt": now}); err != nil {
					return err
				}
			}
		}
		return tx.Set(ReplyPath(target, rootID, out.ID), &out)
	})
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	return &out, nil
}

func (r *StoreMessageRepository) WatchMessage(ctx context.Context, target domain.Target, ref MessageRef, fn MessageListener) (docstore.Unsubscribe, error) {
	return r.store.WatchDocument(ctx, ref.Path(target), func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		if !snap.Exists {
			fn(nil, nil)
			return
		}
		m, err := decodeMessage(snap)
		fn(m, err)
	})
}

// WatchReplies watches the replies of rootID, oldest first.
func (r *StoreMessageRepository) WatchReplies(ctx context.Context, target domain.Target, rootID string, fn MessagesListener) (docstore.Unsubscribe, error) {
	q := docstore.Query{Collection: RepliesCollection(target, rootID), OrderBy: createdAtField}
	return r.store.WatchQuery(ctx, q, func(snaps []docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeAll(snaps), nil)
	})
}
