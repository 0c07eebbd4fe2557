package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-chat/internal/commands"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/thread"
	"huddle-chat/internal/timeline"
	"huddle-chat/internal/uistate"
	huddle_errors "huddle-chat/pkg/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) last(typ EventType) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i].Payload, true
		}
	}
	return nil, false
}

// waitFor waits until the latest event of typ satisfies cond.
func (r *recorder) waitFor(t *testing.T, typ EventType, cond func(any) bool) any {
	t.Helper()
	var got any
	require.Eventually(t, func() bool {
		p, ok := r.last(typ)
		if ok && cond(p) {
			got = p
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	general := domain.ChannelTarget("general")
	rec := &recorder{}
	sess := e.svc.NewSession(ctx, "conn-1", rec.emit)
	defer sess.Close(ctx)

	rec.waitFor(t, EventAuth, func(p any) bool { return !p.(AuthFrame).SignedIn })
	assert.ErrorIs(t, sess.SelectChannel(ctx, "general"), huddle_errors.ErrNotAuthenticated)

	_, err := sess.SignIn(ctx, "garbage")
	assert.ErrorIs(t, err, huddle_errors.ErrNotAuthenticated)

	id, err := sess.SignIn(ctx, e.token(t, "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	rec.waitFor(t, EventAuth, func(p any) bool { return p.(AuthFrame).SignedIn })

	st, err := e.presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Online)

	assert.ErrorIs(t, sess.SelectChannel(ctx, "missing"), huddle_errors.ErrNotFound)
	require.NoError(t, sess.SelectChannel(ctx, "general"))
	root, err := sess.Send(ctx, "good morning")
	require.NoError(t, err)

	frame := rec.waitFor(t, EventTimeline, func(p any) bool {
		f := p.(TimelineFrame)
		return f.Target == general && len(timeline.Flatten(f.Days)) == 1
	}).(TimelineFrame)
	require.Len(t, frame.Days, 1)
	assert.Equal(t, timeline.TodayLabel, frame.Days[0].Label)
	assert.Equal(t, "channel", string(frame.Selection.Kind))
	views := timeline.Flatten(frame.Days)
	assert.True(t, views[0].Mine)
	assert.Equal(t, "Ada", views[0].AuthorName)

	t.Run("thread", func(t *testing.T) {
		require.NoError(t, sess.OpenThread(ctx, root.ID))
		rec.waitFor(t, EventThread, func(p any) bool {
			v := p.(thread.View)
			return v.Open && v.Header.Subtitle == "#general"
		})

		reply, err := sess.Reply(ctx, "a reply")
		require.NoError(t, err)
		rec.waitFor(t, EventThread, func(p any) bool { return len(p.(thread.View).Replies) == 1 })

		res, err := sess.React(ctx, reply.ID, "1f44d")
		require.NoError(t, err)
		assert.True(t, res.Added)

		got, err := e.messages.GetMessage(ctx, general, repository.ReplyRef(root.ID, reply.ID))
		require.NoError(t, err)
		assert.Equal(t, 1, got.Reactions["\U0001F44D"])

		rootNow, err := e.messages.GetMessage(ctx, general, repository.RootRef(root.ID))
		require.NoError(t, err)
		assert.Empty(t, rootNow.Reactions)
		assert.Equal(t, 1, rootNow.ReplyCount)
	})

	t.Run("edit in place", func(t *testing.T) {
		require.NoError(t, sess.BeginEdit(ctx, root.ID))
		assert.Equal(t, root.ID, sess.UI().Editing)
		sess.SetDraft("good morning all")
		require.NoError(t, sess.CommitEdit(ctx))
		assert.Empty(t, sess.UI().Editing)

		got, err := e.messages.GetMessage(ctx, general, repository.RootRef(root.ID))
		require.NoError(t, err)
		assert.Equal(t, "good morning all", got.Text)
		assert.True(t, got.Edited())
	})

	t.Run("switching to a dm closes the thread", func(t *testing.T) {
		require.NoError(t, sess.SelectDM(ctx, "u2"))
		assert.False(t, sess.Thread().Open)
		rec.waitFor(t, EventTimeline, func(p any) bool {
			return p.(TimelineFrame).Target == domain.DMTarget(conversation.ID("u1", "u2"))
		})

		_, err := sess.Send(ctx, "hey bob")
		require.NoError(t, err)
		rec.waitFor(t, EventTimeline, func(p any) bool { return len(timeline.Flatten(p.(TimelineFrame).Days)) == 1 })

		assert.ErrorIs(t, sess.SelectDM(ctx, "ghost"), huddle_errors.ErrNotFound)
	})

	sess.SignOut(ctx)
	rec.waitFor(t, EventAuth, func(p any) bool { return !p.(AuthFrame).SignedIn })
	assert.Equal(t, 0, e.store.ActiveListeners())

	st, err = e.presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Online)
}

func TestSessionUI(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := &recorder{}
	sess := e.svc.NewSession(ctx, "conn-2", rec.emit)
	defer sess.Close(ctx)

	viewport := uistate.Size{Width: 1200, Height: 800}
	sess.OpenEmojiPicker("m1", uistate.Rect{Top: 700, Left: 100, Width: 24, Height: 24}, viewport)
	st := rec.waitFor(t, EventUI, func(p any) bool { return p.(uistate.State).Popover == "emoji_picker" }).(uistate.State)
	assert.Equal(t, "m1", st.Anchor)
	require.NotNil(t, st.Position)
	assert.Equal(t, uistate.Above, st.Position.Placement)

	sess.OpenEditMenu("m2", uistate.Rect{Top: 100, Left: 100, Width: 24, Height: 24}, viewport)
	assert.Equal(t, "edit_menu", sess.UI().Popover)

	sess.ToggleMembers()
	assert.True(t, sess.Escape())
	assert.Empty(t, sess.UI().Popover)
	assert.True(t, sess.UI().MembersModal)
	assert.True(t, sess.Escape())
	assert.False(t, sess.Escape())
}

func TestSessionCloseReleasesPresence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.svc.NewSession(ctx, "tab-a", nil)
	b := e.svc.NewSession(ctx, "tab-b", nil)

	_, err := a.SignIn(ctx, e.token(t, "u2"))
	require.NoError(t, err)
	_, err = b.SignIn(ctx, e.token(t, "u2"))
	require.NoError(t, err)

	assert.ErrorIs(t, a.SelectChannel(ctx, "general"), huddle_errors.ErrForbidden)

	a.Close(ctx)
	a.Close(ctx)
	st, err := e.presence.Get(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, st.Online)

	b.Close(ctx)
	st, err = e.presence.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Equal(t, 0, e.store.ActiveListeners())
}

func TestCommandBusDrivesSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rec := &recorder{}
	sess := e.svc.NewSession(ctx, "conn-3", rec.emit)
	defer sess.Close(ctx)
	bus := NewCommandBus()
	sctx := WithSession(ctx, sess)

	run := func(frame string) (commands.Result, error) {
		_, cmd, err := commands.Decode([]byte(frame))
		require.NoError(t, err)
		return bus.Execute(sctx, cmd)
	}

	_, err := run(`{"type":"refresh"}`)
	assert.ErrorIs(t, err, huddle_errors.ErrNotAuthenticated)

	_, err = sess.SignIn(ctx, e.token(t, "u1"))
	require.NoError(t, err)

	_, err = run(`{"type":"select_channel","payload":{"channelId":"general"}}`)
	require.NoError(t, err)
	res, err := run(`{"id":"r1","type":"send_message","payload":{"text":"via the bus"}}`)
	require.NoError(t, err)
	require.NotEmpty(t, res.AggregateID)

	rec.waitFor(t, EventTimeline, func(p any) bool { return len(timeline.Flatten(p.(TimelineFrame).Days)) == 1 })

	_, err = run(`{"type":"open_thread","payload":{"messageId":"` + res.AggregateID + `"}}`)
	require.NoError(t, err)
	assert.True(t, sess.Thread().Open)

	_, err = run(`{"type":"close_thread"}`)
	require.NoError(t, err)
	assert.False(t, sess.Thread().Open)

	res, err = run(`{"type":"open_popover","payload":{"popover":"emoji_picker","messageId":"m1","viewport":{"width":800,"height":600}}}`)
	require.NoError(t, err)
	assert.Equal(t, "emoji_picker", res.Payload.(uistate.State).Popover)

	_, err = run(`{"type":"set_status","payload":{"status":"away"}}`)
	require.NoError(t, err)
	_, err = run(`{"type":"heartbeat"}`)
	require.NoError(t, err)

	_, err = bus.Execute(ctx, commands.SimpleCommand{Type: commands.TypeRefresh})
	assert.ErrorIs(t, err, huddle_errors.ErrNotAuthenticated)
}
