package repository

import (
	"context"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain/conversation"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type StoreConversationRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewConversationRepository(store docstore.Store, l *logger.Logger) *StoreConversationRepository {
	return &StoreConversationRepository{
		store:  store,
		logger: logger.OrNop(l).Named("repository.conversations"),
	}
}

var _ ConversationRepository = (*StoreConversationRepository)(nil)

func decodeConversation(snap docstore.Snapshot) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := snap.DataTo(&c); err != nil {
		return nil, err
	}
	c.ID = snap.ID
	return &c, nil
}

func (r *StoreConversationRepository) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	snap, err := r.store.Get(ctx, ConversationPath(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, huddle_errors.ErrNotFound
	}
	return decodeConversation(snap)
}

// ListForUser returns the user's conversations, most recently active first.
func (r *StoreConversationRepository) ListForUser(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{
		Collection: ConversationsCollection,
		OrderBy:    "lastMessageAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	var out []*conversation.Conversation
	for _, s := range snaps {
		c, err := decodeConversation(s)
		if err != nil {
			r.logger.Warnf("skipping undecodable conversation %s: %v", s.Path, err)
			continue
		}
		if c.Has(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}
