package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-chat/internal/docstore/memory"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/user"
	huddle_errors "huddle-chat/pkg/errors"
)

func TestChannelMembership(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository(memory.New(), nil)

	ch, err := repo.Create(ctx, &channel.Channel{ID: "dev", Name: "dev"}, channel.Member{UserID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, 1, ch.MemberCount)
	assert.Equal(t, "u1", ch.CreatedBy)

	_, err = repo.Create(ctx, &channel.Channel{ID: "dev", Name: "dev"}, channel.Member{UserID: "u2"})
	assert.ErrorIs(t, err, huddle_errors.ErrAlreadyExists)

	owner, err := repo.GetMember(ctx, "dev", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberRoleOwner, owner.Role)
	assert.True(t, owner.CanModerate())

	added, err := repo.AddMember(ctx, "dev", channel.Member{UserID: "u2", DisplayName: "Bob"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddMember(ctx, "dev", channel.Member{UserID: "u2", DisplayName: "Bob"})
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repo.Get(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)

	members, err := repo.ListMembers(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, domain.MemberRoleMember, members[1].Role)

	removed, err := repo.RemoveMember(ctx, "dev", "u2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveMember(ctx, "dev", "u2")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err = repo.Get(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)

	_, err = repo.AddMember(ctx, "missing", channel.Member{UserID: "u2"})
	assert.ErrorIs(t, err, huddle_errors.ErrNotFound)
}

func TestChannelListAndTopic(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository(memory.New(), nil)

	for _, name := range []string{"random", "general", "dev"} {
		_, err := repo.Create(ctx, &channel.Channel{ID: name, Name: name}, channel.Member{UserID: "u1"})
		require.NoError(t, err)
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "dev", list[0].Name)
	assert.Equal(t, "random", list[2].Name)

	require.NoError(t, repo.SetTopic(ctx, "dev", "  builds and bugs "))
	got, err := repo.Get(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, "builds and bugs", got.Topic)

	assert.ErrorIs(t, repo.SetTopic(ctx, "nope", "x"), huddle_errors.ErrNotFound)
}

func TestUserUpsertKeepsPresence(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(memory.New(), nil)

	created, err := repo.Upsert(ctx, &user.User{ID: "u1", DisplayName: " Ada ", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.DisplayName)
	assert.Equal(t, domain.UserStatusActive, created.Status)
	assert.Equal(t, domain.UserRoleMember, created.Role)

	seen := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdatePresence(ctx, "u1", true, domain.UserStatusAway, seen))

	updated, err := repo.Upsert(ctx, &user.User{ID: "u1", DisplayName: "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.DisplayName)
	assert.True(t, updated.Online)
	assert.Equal(t, domain.UserStatusAway, updated.Status)
	assert.Equal(t, "ada@example.com", updated.Email)

	require.NoError(t, repo.SetAvatar(ctx, "u1", "https://cdn.example.com/a.png"))
	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", got.AvatarURL)
	require.NotNil(t, got.LastSeen)
	assert.True(t, seen.Equal(*got.LastSeen))

	assert.ErrorIs(t, repo.UpdatePresence(ctx, "ghost", true, "", seen), huddle_errors.ErrNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
