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
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type StoreChannelRepository struct {
	store  docstore.Store
	logger *logger.Logger
	now    func() time.Time
}

func NewChannelRepository(store docstore.Store, l *logger.Logger) *StoreChannelRepository {
	return &StoreChannelRepository{
		store:  store,
		logger: logger.OrNop(l).Named("repository.channels"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ ChannelRepository = (*StoreChannelRepository)(nil)

func decodeChannel(snap docstore.Snapshot) (*channel.Channel, error) {
	var ch channel.Channel
	if err := snap.DataTo(&ch); err != nil {
		return nil, err
	}
	ch.ID = snap.ID
	return &ch, nil
}

func decodeMember(snap docstore.Snapshot) (*channel.Member, error) {
	var m channel.Member
	if err := snap.DataTo(&m); err != nil {
		return nil, err
	}
	m.UserID = snap.ID
	return &m, nil
}

// Create stores a channel together with its owner's membership.
func (r *StoreChannelRepository) Create(ctx context.Context, ch *channel.Channel, owner channel.Member) (*channel.Channel, error) {
	if ch == nil || strings.TrimSpace(ch.Name) == "" || owner.UserID == "" {
		return nil, fmt.Errorf("create channel: %w", huddle_errors.ErrInvalidInput)
	}

	out := *ch
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.CreatedBy = owner.UserID
	out.MemberCount = 1
	out.MessageCount = 0
	out.LastMessageAt = nil
	out.LastReplyAt = nil

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := r.now()
		out.CreatedAt = &now

		snap, err := tx.Get(ChannelPath(out.ID))
		if err != nil {
			return err
		}
		if snap.Exists {
			return fmt.Errorf("channel %s: %w", out.ID, huddle_errors.ErrAlreadyExists)
		}

		m := owner
		m.Role = domain.MemberRoleOwner
		m.JoinedAt = &now
		if err := tx.Set(MemberPath(out.ID, m.UserID), &m); err != nil {
			return err
		}
		return tx.Set(snap.Path, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return &out, nil
}

func (r *StoreChannelRepository) Get(ctx context.Context, id string) (*channel.Channel, error) {
	snap, err := r.store.Get(ctx, ChannelPath(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, huddle_errors.ErrNotFound
	}
	return decodeChannel(snap)
}

func (r *StoreChannelRepository) decodeAll(snaps []docstore.Snapshot) []*channel.Channel {
	out := make([]*channel.Channel, 0, len(snaps))
	for _, s := range snaps {
		ch, err := decodeChannel(s)
		if err != nil {
			r.logger.Warnf("skipping undecodable channel %s: %v", s.Path, err)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// List returns all channels ordered by name.
func (r *StoreChannelRepository) List(ctx context.Context) ([]*channel.Channel, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{Collection: ChannelsCollection, OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(snaps), nil
}

func (r *StoreChannelRepository) Watch(ctx context.Context, fn func([]*channel.Channel, error)) (docstore.Unsubscribe, error) {
	q := docstore.Query{Collection: ChannelsCollection, OrderBy: "name"}
	return r.store.WatchQuery(ctx, q, func(snaps []docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeAll(snaps), nil)
	})
}

func (r *StoreChannelRepository) SetTopic(ctx context.Context, id, topic string) error {
	if err := r.store.Update(ctx, ChannelPath(id), map[string]any{"topic": strings.TrimSpace(topic)}); err != nil {
		return fmt.Errorf("set topic of %s: %w", id, err)
	}
	return nil
}

// AddMember writes the membership record and increments memberCount. It
// reports false when the user already was a member.
func (r *StoreChannelRepository) AddMember(ctx context.Context, channelID string, m channel.Member) (bool, error) {
	if m.UserID == "" {
		return false, fmt.Errorf("add member: %w", huddle_errors.ErrInvalidInput)
	}

	var added bool
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		added = false

		chSnap, err := tx.Get(ChannelPath(channelID))
		if err != nil {
			return err
		}
		if !chSnap.Exists {
			return fmt.Errorf("channel %s: %w", channelID, huddle_errors.ErrNotFound)
		}
		memberSnap, err := tx.Get(MemberPath(channelID, m.UserID))
		if err != nil {
			return err
		}
		if memberSnap.Exists {
			return nil
		}
		ch, err := decodeChannel(chSnap)
		if err != nil {
			return err
		}

		now := r.now()
		rec := m
		if rec.Role == "" {
			rec.Role = domain.MemberRoleMember
		}
		rec.JoinedAt = &now
		if err := tx.Set(memberSnap.Path, &rec); err != nil {
			return err
		}
		added = true
		return tx.Update(chSnap.Path, map[string]any{"memberCount": ch.MemberCount + 1})
	})
	if err != nil {
		return false, fmt.Errorf("add member to %s: %w", channelID, err)
	}
	return added, nil
}

// RemoveMember deletes the membership record and decrements memberCount,
// never below zero. It reports false when the user was not a member.
func (r *StoreChannelRepository) RemoveMember(ctx context.Context, channelID, userID string) (bool, error) {
	var removed bool
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		removed = false

		memberSnap, err := tx.Get(MemberPath(channelID, userID))
		if err != nil {
			return err
		}
		if !memberSnap.Exists {
			return nil
		}
		chSnap, err := tx.Get(ChannelPath(channelID))
		if err != nil {
			return err
		}
		if chSnap.Exists {
			ch, err := decodeChannel(chSnap)
			if err != nil {
				return err
			}
			if err := tx.Update(chSnap.Path, map[string]any{"memberCount": max(ch.MemberCount-1, 0)}); err != nil {
				return err
			}
		}
		removed = true
		return tx.Delete(memberSnap.Path)
	})
	if err != nil {
		return false, fmt.Errorf("remove member from %s: %w", channelID, err)
	}
	return removed, nil
}

func (r *StoreChannelRepository) GetMember(ctx context.Context, channelID, userID string) (*channel.Member, error) {
	snap, err := r.store.Get(ctx, MemberPath(channelID, userID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, huddle_errors.ErrNotFound
	}
	return decodeMember(snap)
}

// ListMembers returns the members of a channel in join order.
func (r *StoreChannelRepository) ListMembers(ctx context.Context, channelID string) ([]*channel.Member, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{Collection: MembersCollection(channelID), OrderBy: "joinedAt"})
	if err != nil {
		return nil, err
	}
	out := make([]*channel.Member, 0, len(snaps))
	for _, s := range snaps {
		m, err := decodeMember(s)
		if err != nil {
			r.logger.Warnf("skipping undecodable member %s: %v", s.Path, err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
