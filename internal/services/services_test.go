package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/docstore/memory"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/presence"
	huddle_redis "huddle-chat/internal/redis"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/storage"
	huddle_errors "huddle-chat/pkg/errors"
)

type env struct {
	store    *memory.Store
	svc      *Services
	verifier *auth.Verifier
	users    *repository.StoreUserRepository
	channels *repository.StoreChannelRepository
	messages *repository.StoreMessageRepository
	presence *presence.Store
	mr       *miniredis.Miniredis
}

type option func(*Deps)

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	store := memory.New()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		store:    store,
		verifier: auth.NewVerifier("test-secret", "huddle", 0),
		users:    repository.NewUserRepository(store, nil),
		channels: repository.NewChannelRepository(store, nil),
		messages: repository.NewMessageRepository(store, nil),
		mr:       mr,
	}
	e.presence = presence.New(client, e.users, time.Minute, nil)

	d := Deps{
		Messages:      e.messages,
		Channels:      e.channels,
		Users:         e.users,
		Conversations: repository.NewConversationRepository(store, nil),
		Verifier:      e.verifier,
		Presence:      e.presence,
	}
	for _, o := range opts {
		o(&d)
	}
	e.svc = New(d)

	ctx := context.Background()
	for _, u := range []*user.User{
		{ID: "u1", DisplayName: "Ada"},
		{ID: "u2", DisplayName: "Bob"},
		{ID: "u3", DisplayName: "Cy", Role: domain.UserRoleGuest},
	} {
		_, err := e.users.Upsert(ctx, u)
		require.NoError(t, err)
	}
	_, err := e.svc.Channels.Create(e.as("u1"), "General", "")
	require.NoError(t, err)
	return e
}

func (e *env) as(uid string) context.Context {
	id := &auth.Identity{UserID: uid}
	if u, err := e.users.Get(context.Background(), uid); err == nil {
		id.DisplayName = u.DisplayName
		id.Role = u.Role
	}
	return WithIdentity(context.Background(), id)
}

func (e *env) token(t *testing.T, uid string) string {
	t.Helper()
	id := auth.Identity{UserID: uid}
	if u, err := e.users.Get(context.Background(), uid); err == nil {
		id.DisplayName = u.DisplayName
	}
	tok, err := e.verifier.Sign(id, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{huddle_errors.ErrInvalidInput, http.StatusBadRequest},
		{huddle_errors.ErrNotAuthenticated, http.StatusUnauthorized},
		{huddle_errors.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("channel x: %w", huddle_errors.ErrNotFound), http.StatusNotFound},
		{huddle_errors.ErrAlreadyExists, http.StatusConflict},
		{huddle_errors.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{huddle_errors.ErrRateLimited, http.StatusTooManyRequests},
		{huddle_errors.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
	assert.Equal(t, "RATE_LIMITED", ErrorCode(huddle_errors.ErrRateLimited))
	assert.True(t, Silent(huddle_errors.ErrNotFound))
	assert.False(t, Silent(huddle_errors.ErrForbidden))
}

func TestChatPermissions(t *testing.T) {
	e := newEnv(t)
	general := domain.ChannelTarget("general")

	_, err := e.svc.Chat.Send(context.Background(), general, "anonymous")
	assert.ErrorIs(t, err, huddle_errors.ErrNotAuthenticated)

	_, err = e.svc.Chat.Send(e.as("u2"), general, "not a member yet")
	assert.ErrorIs(t, err, huddle_errors.ErrForbidden)

	_, err = e.svc.Channels.Join(e.as("u2"), "general")
	require.NoError(t, err)

	ada, err := e.svc.Chat.Send(e.as("u1"), general, "hi @Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ada.Mentions)
	assert.Equal(t, "Ada", ada.AuthorName)

	bob, err := e.svc.Chat.Send(e.as("u2"), general, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", bob.Text)

	assert.ErrorIs(t, e.svc.Chat.Edit(e.as("u2"), general, repository.RootRef(ada.ID), "hijack"), huddle_errors.ErrForbidden)
	require.NoError(t, e.svc.Chat.Edit(e.as("u2"), general, repository.RootRef(bob.ID), "hello there"))

	assert.ErrorIs(t, e.svc.Chat.Delete(e.as("u2"), general, repository.RootRef(ada.ID)), huddle_errors.ErrForbidden)
	// the owner moderates
	require.NoError(t, e.svc.Chat.Delete(e.as("u1"), general, repository.RootRef(bob.ID)))

	res, err := e.svc.Chat.React(e.as("u2"), general, repository.RootRef(ada.ID), ":thumbsup:")
	require.NoError(t, err)
	assert.Equal(t, repository.ToggleResult{Added: true, Count: 1}, res)

	_, err = e.svc.Chat.React(e.as("u2"), general, repository.RootRef(ada.ID), "not an emoji")
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)

	_, err = e.svc.Chat.Send(e.as("u1"), general, strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, huddle_errors.ErrTooLarge)
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	e := newEnv(t)
	general := domain.ChannelTarget("general")

	// two bytes per character
	atLimit := strings.Repeat("é", MaxMessageLength)
	m, err := e.svc.Chat.Send(e.as("u1"), general, atLimit)
	require.NoError(t, err)
	assert.Equal(t, atLimit, m.Text)

	_, err = e.svc.Chat.Send(e.as("u1"), general, atLimit+"é")
	assert.ErrorIs(t, err, huddle_errors.ErrTooLarge)

	ref := repository.RootRef(m.ID)
	require.NoError(t, e.svc.Chat.Edit(e.as("u1"), general, ref, strings.Repeat("ü", MaxMessageLength)))
	assert.ErrorIs(t, e.svc.Chat.Edit(e.as("u1"), general, ref, strings.Repeat("ü", MaxMessageLength+1)), huddle_errors.ErrTooLarge)
	assert.ErrorIs(t, e.svc.Chat.Edit(e.as("u1"), general, ref, "   "), huddle_errors.ErrInvalidInput)
}

func TestDirectMessages(t *testing.T) {
	e := newEnv(t)
	dm := domain.DMTarget(conversation.ID("u1", "u2"))

	_, err := e.svc.Chat.Send(e.as("u1"), dm, "psst")
	require.NoError(t, err)

	_, err = e.svc.Chat.Send(e.as("u3"), dm, "eavesdrop")
	assert.ErrorIs(t, err, huddle_errors.ErrForbidden)

	_, err = e.svc.Chat.Send(e.as("u1"), domain.DMTarget(conversation.ID("u1", "ghost")), "hello?")
	assert.ErrorIs(t, err, huddle_errors.ErrNotFound)

	convs, err := e.svc.Chat.ListConversations(e.as("u2"))
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, dm.ID, convs[0].ID)
}

type denyLimiter struct{}

func (denyLimiter) AllowMessage(context.Context, string) (*huddle_redis.RateLimitResult, error) {
	return &huddle_redis.RateLimitResult{Allowed: false, ResetIn: time.Second}, nil
}

func (denyLimiter) AllowReaction(context.Context, string) (*huddle_redis.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func TestChatRateLimit(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Limiter = denyLimiter{} })
	general := domain.ChannelTarget("general")

	_, err := e.svc.Chat.Send(e.as("u1"), general, "spam")
	assert.ErrorIs(t, err, huddle_errors.ErrRateLimited)

	// a failing limiter lets reactions through
	res, err := e.svc.Chat.React(e.as("u1"), general, repository.RootRef("ghost"), ":+1:")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestChannelService(t *testing.T) {
	e := newEnv(t)

	name, err := NormalizeChannelName("  #Design Team ")
	require.NoError(t, err)
	assert.Equal(t, "design-team", name)
	_, err = NormalizeChannelName("!!")
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)

	_, err = e.svc.Channels.Create(e.as("u2"), "general", "")
	assert.ErrorIs(t, err, huddle_errors.ErrAlreadyExists)
	_, err = e.svc.Channels.Create(e.as("u3"), "guests", "")
	assert.ErrorIs(t, err, huddle_errors.ErrForbidden)

	ch, err := e.svc.Channels.Create(e.as("u2"), "Design", " pixels ")
	require.NoError(t, err)
	assert.Equal(t, "design", ch.ID)
	assert.Equal(t, "pixels", ch.Topic)

	assert.ErrorIs(t, e.svc.Channels.SetTopic(e.as("u1"), "design", "mine now"), huddle_errors.ErrForbidden)
	require.NoError(t, e.svc.Channels.SetTopic(e.as("u2"), "design", "pixels and fonts"))

	_, err = e.svc.Channels.Members(e.as("u1"), "design")
	assert.ErrorIs(t, err, huddle_errors.ErrForbidden)

	joined, err := e.svc.Channels.Join(e.as("u1"), "design")
	require.NoError(t, err)
	assert.True(t, joined)

	members, err := e.svc.Channels.Members(e.as("u1"), "design")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Ada", members[1].DisplayName)

	left, err := e.svc.Channels.Leave(e.as("u1"), "design")
	require.NoError(t, err)
	assert.True(t, left)

	_, err = e.svc.Channels.Leave(e.as("u1"), "nope")
	assert.ErrorIs(t, err, huddle_errors.ErrNotFound)

	list, err := e.svc.Channels.List(e.as("u3"))
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

type fakeAvatars struct {
	put []byte
}

func (f *fakeAvatars) PresignAvatarUpload(_ context.Context, userID, contentType string, size int64) (storage.Upload, error) {
	key, err := storage.AvatarKey(userID, contentType)
	if err != nil {
		return storage.Upload{}, err
	}
	return storage.Upload{URL: "https://s3.test/" + key, Method: http.MethodPut, Key: key}, nil
}

func (f *fakeAvatars) PutAvatar(_ context.Context, userID, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.put = data
	return "https://cdn.test/avatars/" + userID + "/up.png", nil
}

func (f *fakeAvatars) FileURL(key string) string {
	return "https://cdn.test/" + key
}

func TestUserServiceAvatars(t *testing.T) {
	avatars := &fakeAvatars{}
	e := newEnv(t, func(d *Deps) { d.Avatars = avatars })
	ctx := e.as("u1")

	up, err := e.svc.Users.PresignAvatar(ctx, "image/png", 1024)
	require.NoError(t, err)
	assert.True(t, storage.OwnsKey("u1", up.Key))

	url, err := e.svc.Users.UpdateAvatar(ctx, up.Key)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+up.Key, url)

	u, err := e.users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, url, u.AvatarURL)

	_, err = e.svc.Users.UpdateAvatar(e.as("u2"), up.Key)
	assert.ErrorIs(t, err, huddle_errors.ErrForbidden)

	url, err = e.svc.Users.UploadAvatar(ctx, "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), avatars.put)
	assert.Contains(t, url, "/avatars/u1/")

	bare := newEnv(t)
	_, err = bare.svc.Users.PresignAvatar(bare.as("u1"), "image/png", 1024)
	assert.ErrorIs(t, err, huddle_errors.ErrServiceUnavailable)
}

func TestUserServiceDirectory(t *testing.T) {
	e := newEnv(t)

	got, err := e.svc.Users.Suggest(e.as("u1"), "@", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.svc.Users.Suggest(e.as("u1"), "b", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].ID)

	// the actor never suggests themselves
	got, err = e.svc.Users.Suggest(e.as("u1"), "@ada", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	synced, err := e.svc.Users.SyncProfile(context.Background(), &auth.Identity{UserID: "u4", DisplayName: "Dee", Email: "dee@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserStatusActive, synced.Status)

	all, err := e.svc.Users.Directory(e.as("u4"))
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, e.svc.Users.SetStatus(e.as("u2"), "away"))
	st, err := e.svc.Users.Presence(e.as("u1"), []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, "away", st["u2"].Status)
	assert.False(t, st["u3"].Online)

	assert.ErrorIs(t, e.svc.Users.SetStatus(e.as("u2"), "busy"), huddle_errors.ErrInvalidInput)
}
