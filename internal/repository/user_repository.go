package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/user"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type StoreUserRepository struct {
	store  docstore.Store
	logger *logger.Logger
}

func NewUserRepository(store docstore.Store, l *logger.Logger) *StoreUserRepository {
	return &StoreUserRepository{
		store:  store,
		logger: logger.OrNop(l).Named("repository.users"),
	}
}

var _ UserRepository = (*StoreUserRepository)(nil)

func decodeUser(snap docstore.Snapshot) (*user.User, error) {
	var u user.User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = snap.ID
	return &u, nil
}

func (r *StoreUserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	snap, err := r.store.Get(ctx, UserPath(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, huddle_errors.ErrNotFound
	}
	return decodeUser(snap)
}

func (r *StoreUserRepository) decodeAll(snaps []docstore.Snapshot) []*user.User {
	out := make([]*user.User, 0, len(snaps))
	for _, s := range snaps {
		u, err := decodeUser(s)
		if err != nil {
			r.logger.Warnf("skipping undecodable user %s: %v", s.Path, err)
			continue
		}
		out = append(out, u)
	}
	return out
}

// List returns the whole directory ordered by id.
func (r *StoreUserRepository) List(ctx context.Context) ([]*user.User, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{Collection: UsersCollection})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(snaps), nil
}

func (r *StoreUserRepository) Watch(ctx context.Context, fn func([]*user.User, error)) (docstore.Unsubscribe, error) {
	return r.store.WatchQuery(ctx, docstore.Query{Collection: UsersCollection}, func(snaps []docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeAll(snaps), nil)
	})
}

// Upsert creates the user or refreshes its profile fields. Presence fields
// and the avatar of an existing user are left alone unless provided.
func (r *StoreUserRepository) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil || u.ID == "" {
		return nil, fmt.Errorf("upsert user: %w", huddle_errors.ErrInvalidInput)
	}

	var out *user.User
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(UserPath(u.ID))
		if err != nil {
			return err
		}
		if !snap.Exists {
			created := *u
			created.DisplayName = strings.TrimSpace(created.DisplayName)
			if created.Status == "" {
				created.Status = domain.UserStatusActive
			}
			if created.Role == "" {
				created.Role = domain.UserRoleMember
			}
			out = &created
			return tx.Set(snap.Path, &created)
		}

		existing, err := decodeUser(snap)
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if name := strings.TrimSpace(u.DisplayName); name != "" && name != existing.DisplayName {
			fields["displayName"] = name
			existing.DisplayName = name
		}
		if u.Email != "" && u.Email != existing.Email {
			fields["email"] = u.Email
			existing.Email = u.Email
		}
		if u.AvatarURL != "" && u.AvatarURL != existing.AvatarURL {
			fields["avatarUrl"] = u.AvatarURL
			existing.AvatarURL = u.AvatarURL
		}
		if u.Role != "" && u.Role != existing.Role {
			fields["role"] = u.Role
			existing.Role = u.Role
		}
		out = existing
		if len(fields) == 0 {
			return nil
		}
		return tx.Update(snap.Path, fields)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return out, nil
}

func (r *StoreUserRepository) UpdatePresence(ctx context.Context, id string, online bool, status domain.UserStatus, lastSeen time.Time) error {
	fields := map[string]any{
		"online":   online,
		"lastSeen": lastSeen.UTC(),
	}
	if status != "" {
		fields["status"] = status
	}
	if err := r.store.Update(ctx, UserPath(id), fields); err != nil {
		return fmt.Errorf("update presence of %s: %w", id, err)
	}
	return nil
}

func (r *StoreUserRepository) SetAvatar(ctx context.Context, id, url string) error {
	if err := r.store.Update(ctx, UserPath(id), map[string]any{"avatarUrl": url}); err != nil {
		return fmt.Errorf("set avatar of %s: %w", id, err)
	}
	return nil
}
