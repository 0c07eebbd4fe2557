package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-chat/internal/docstore/memory"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/repository"
)

func setup(t *testing.T) (*Store, *repository.StoreUserRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := repository.NewUserRepository(memory.New(), nil)
	_, err := users.Upsert(context.Background(), &user.User{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)

	return New(client, users, time.Minute, nil), users, mr
}

func TestTransitionsAreMirrored(t *testing.T) {
	ctx := context.Background()
	s, users, _ := setup(t)

	require.NoError(t, s.SetOnline(ctx, "u1"))
	st, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.Equal(t, "active", st.Status)

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Online)
	assert.Equal(t, domain.UserStatusActive, u.Status)

	require.NoError(t, s.SetAway(ctx, "u1"))
	u, err = users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Online)
	assert.Equal(t, domain.UserStatusAway, u.Status)

	require.NoError(t, s.SetOffline(ctx, "u1"))
	u, err = users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Online)
	assert.Equal(t, domain.UserStatusAway, u.Status)
	require.NotNil(t, u.LastSeen)

	online, err := s.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestUnknownUsers(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	// no user document: presence still works, the mirror is skipped
	require.NoError(t, s.SetOnline(ctx, "ghost"))

	got, err := s.GetMany(ctx, []string{"ghost", "nobody"})
	require.NoError(t, err)
	assert.True(t, got["ghost"].Online)
	assert.False(t, got["nobody"].Online)
	assert.Equal(t, StatusOffline, got["nobody"].Status)

	assert.Error(t, s.SetOnline(ctx, ""))
}

func TestCleanupStale(t *testing.T) {
	ctx := context.Background()
	s, users, _ := setup(t)

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetOnline(ctx, "u1"))
	require.NoError(t, s.SetOnline(ctx, "u2"))

	s.now = func() time.Time { return base.Add(90 * time.Second) }
	require.NoError(t, s.Heartbeat(ctx, "u2"))

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err := s.CleanupStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	online, err := s.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, online)

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Online)
}

func TestConnections(t *testing.T) {
	ctx := context.Background()
	s, _, mr := setup(t)

	require.NoError(t, s.Connect(ctx, "u1", "tab-1"))
	require.NoError(t, s.Connect(ctx, "u1", "tab-2"))

	require.NoError(t, s.Disconnect(ctx, "u1", "tab-1"))
	st, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Online)

	require.NoError(t, s.Disconnect(ctx, "u1", "tab-2"))
	st, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Online)

	// offline records outlive the online TTL
	mr.FastForward(2 * time.Minute)
	st, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, st.Status)
	assert.False(t, st.LastSeen.IsZero())
}
