package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/stream"
	"huddle-chat/internal/thread"
	"huddle-chat/internal/timeline"
	"huddle-chat/internal/uistate"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"

	"go.uber.org/zap"
)

type EventType string

const (
	EventAuth     EventType = "auth"
	EventTimeline EventType = "timeline"
	EventThread   EventType = "thread"
	EventUI       EventType = "ui"
)

// Event is one frame pushed to the client of a session.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type AuthFrame struct {
	SignedIn bool           `json:"signedIn"`
	User     *auth.Identity `json:"user,omitempty"`
}

type TimelineFrame struct {
	Selection stream.Selection                    `json:"selection"`
	Target    domain.Target                       `json:"target"`
	Days      []timeline.Day[stream.MessageView] `json:"days"`
}

// Session is the server side of one connected chat screen: who is signed
// in, which conversation is selected, the open thread and the transient
// UI state. Every change is pushed through emit, which must not block and
// must not call back into the session.
type Session struct {
	id     string
	svc    *Services
	ctx    context.Context
	state  *auth.State
	stream *stream.Adapter
	thread *thread.Thread
	emit   func(Event)
	now    func() time.Time
	logger *logger.Logger

	mu      sync.Mutex
	ui      *uistate.Coordinator
	unwatch func()
	closed  bool
}

// NewSession starts a signed-out session. Subscriptions opened by the
// session live until Close or until ctx ends.
func (s *Services) NewSession(ctx context.Context, id string, emit func(Event)) *Session {
	if emit == nil {
		emit = func(Event) {}
	}
	sess := &Session{
		id:     id,
		svc:    s,
		ctx:    ctx,
		state:  auth.NewState(s.deps.Verifier),
		emit:   emit,
		now:    time.Now,
		logger: s.logger.Named("session").With(zap.String("session", id)),
		ui:     uistate.NewCoordinator(),
	}
	sess.stream = stream.NewAdapter(s.deps.Messages, s.deps.Users, sess.onTimeline, s.logger)
	sess.thread = thread.New(s.deps.Messages, sess.onThread, s.logger)
	sess.unwatch = sess.state.Watch(sess.onAuth)
	return sess
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() *auth.Identity {
	return s.state.Current()
}

func (s *Session) onAuth(id *auth.Identity) {
	if id == nil {
		s.thread.Close()
		s.stream.SetUser(s.ctx, "")
		s.resetUI()
		s.emit(Event{Type: EventAuth, Payload: AuthFrame{}})
		return
	}
	s.stream.SetUser(s.ctx, id.UserID)
	s.emit(Event{Type: EventAuth, Payload: AuthFrame{SignedIn: true, User: id}})
}

func (s *Session) onTimeline(u stream.Update) {
	s.emit(Event{Type: EventTimeline, Payload: s.frame(u)})
}

func (s *Session) frame(u stream.Update) TimelineFrame {
	return TimelineFrame{
		Selection: u.Selection,
		Target:    u.Target,
		Days:      timeline.GroupByDay(u.Messages, stream.CreatedAt, s.now(), s.svc.deps.Location),
	}
}

func (s *Session) onThread(v thread.View) {
	s.emit(Event{Type: EventThread, Payload: v})
}

// SignIn verifies token, refreshes the user's directory entry and switches
// the session to that user.
func (s *Session) SignIn(ctx context.Context, token string) (*auth.Identity, error) {
	id, err := s.svc.deps.Verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if prev := s.state.Current(); prev != nil && prev.UserID != id.UserID {
		s.SignOut(ctx)
	}
	if _, err := s.svc.Users.SyncProfile(ctx, id); err != nil {
		return nil, fmt.Errorf("sync profile: %w", err)
	}
	if _, err := s.state.SignIn(token); err != nil {
		return nil, err
	}
	if p := s.svc.deps.Presence; p != nil {
		if err := p.Connect(ctx, id.UserID, s.id); err != nil {
			s.logger.Warnf("presence connect for %s: %v", id.UserID, err)
		}
	}
	return id, nil
}

func (s *Session) SignOut(ctx context.Context) {
	id := s.state.Current()
	if id == nil {
		return
	}
	if p := s.svc.deps.Presence; p != nil {
		if err := p.Disconnect(ctx, id.UserID, s.id); err != nil {
			s.logger.Warnf("presence disconnect for %s: %v", id.UserID, err)
		}
	}
	s.state.SignOut()
}

// actor returns the signed-in identity and ctx carrying it.
func (s *Session) actor(ctx context.Context) (*auth.Identity, context.Context, error) {
	id, err := s.state.Require()
	if err != nil {
		return nil, ctx, err
	}
	return id, WithIdentity(ctx, id), nil
}

func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	id, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if err := s.svc.Access.CanView(ctx, id.UserID, domain.ChannelTarget(channelID)); err != nil {
		return err
	}
	s.selectConversation(stream.SelectChannel(channelID))
	return nil
}

func (s *Session) SelectDM(ctx context.Context, peerID string) error {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if peerID == "" {
		return fmt.Errorf("select dm: %w", huddle_errors.ErrInvalidInput)
	}
	if _, err := s.svc.Users.Get(ctx, peerID); err != nil {
		return fmt.Errorf("dm peer %s: %w", peerID, err)
	}
	s.selectConversation(stream.SelectDM(peerID))
	return nil
}

// selectConversation switches the timeline. A different conversation
// closes the thread panel and any transient UI.
func (s *Session) selectConversation(sel stream.Selection) {
	if s.stream.Selection() != sel {
		s.thread.Close()
		s.resetUI()
	}
	s.stream.Select(s.ctx, sel)
}

func (s *Session) Refresh(ctx context.Context) error {
	if _, _, err := s.actor(ctx); err != nil {
		return err
	}
	s.stream.Refresh(s.ctx)
	return nil
}

// OpenThread opens the thread panel on a root message of the selected
// conversation.
func (s *Session) OpenThread(ctx context.Context, messageID string) error {
	id, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	target, err := s.stream.Target()
	if err != nil {
		return err
	}
	root, err := s.svc.Chat.GetMessage(ctx, target, repository.RootRef(messageID))
	if err != nil {
		return err
	}
	return s.thread.Open(s.ctx, target, root, s.threadHeader(ctx, id.UserID, target))
}

func (s *Session) threadHeader(ctx context.Context, self string, target domain.Target) thread.Header {
	h := thread.Header{Title: "Thread"}
	if !target.IsDM() {
		name := target.ID
		if ch, err := s.svc.Channels.Get(ctx, target.ID); err == nil {
			name = ch.Name
		}
		h.Subtitle = "#" + name
		return h
	}
	peer, _ := conversation.Peer(target.ID, self)
	h.Subtitle = peer
	if u, err := s.svc.Users.Get(ctx, peer); err == nil {
		h.Subtitle = u.Label()
	}
	return h
}

func (s *Session) CloseThread() {
	s.thread.Close()
}

func (s *Session) Send(ctx context.Context, text string) (*message.Message, error) {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.stream.Target()
	if err != nil {
		return nil, err
	}
	return s.svc.Chat.Send(ctx, target, text)
}

// Reply posts into the open thread.
func (s *Session) Reply(ctx context.Context, text string) (*message.Message, error) {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	v := s.thread.View()
	if !v.Open {
		return nil, thread.ErrNotOpen
	}
	return s.svc.Chat.Reply(ctx, v.Target, v.Root.ID, text)
}

// locate finds where messageID lives: the open thread when it shows the
// message, the selected conversation otherwise.
func (s *Session) locate(messageID string) (domain.Target, repository.MessageRef, error) {
	if messageID == "" {
		return domain.Target{}, repository.MessageRef{}, fmt.Errorf("message id: %w", huddle_errors.ErrInvalidInput)
	}
	if v := s.thread.View(); v.Open {
		if v.Root.ID == messageID {
			return s.thread.Route(messageID)
		}
		for _, r := range v.Replies {
			if r.ID == messageID {
				return s.thread.Route(messageID)
			}
		}
	}
	target, err := s.stream.Target()
	if err != nil {
		return domain.Target{}, repository.MessageRef{}, err
	}
	return target, repository.RootRef(messageID), nil
}

func (s *Session) Edit(ctx context.Context, messageID, text string) error {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	target, ref, err := s.locate(messageID)
	if err != nil {
		return err
	}
	return s.svc.Chat.Edit(ctx, target, ref, text)
}

func (s *Session) Delete(ctx context.Context, messageID string) error {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	target, ref, err := s.locate(messageID)
	if err != nil {
		return err
	}
	return s.svc.Chat.Delete(ctx, target, ref)
}

// React toggles a reaction and closes the emoji picker it came from.
func (s *Session) React(ctx context.Context, messageID, emoji string) (repository.ToggleResult, error) {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return repository.ToggleResult{}, err
	}
	target, ref, err := s.locate(messageID)
	if err != nil {
		return repository.ToggleResult{}, err
	}
	res, err := s.svc.Chat.React(ctx, target, ref, emoji)
	if err != nil {
		return res, err
	}
	s.updateUI(func(c *uistate.Coordinator) {
		if c.EmojiPicker.IsOpen() && c.Anchor() == messageID {
			c.EmojiPicker.Close()
		}
	})
	return res, nil
}

func (s *Session) OpenEmojiPicker(messageID string, trigger uistate.Rect, viewport uistate.Size) {
	s.updateUI(func(c *uistate.Coordinator) { c.OpenEmojiPicker(messageID, trigger, viewport) })
}

func (s *Session) OpenEditMenu(messageID string, trigger uistate.Rect, viewport uistate.Size) {
	s.updateUI(func(c *uistate.Coordinator) { c.OpenEditMenu(messageID, trigger, viewport) })
}

func (s *Session) ToggleMembers() {
	s.updateUI(func(c *uistate.Coordinator) { c.MembersModal.Toggle() })
}

// Escape closes the innermost open affordance.
func (s *Session) Escape() bool {
	var closed bool
	s.updateUI(func(c *uistate.Coordinator) { closed = c.Escape() })
	return closed
}

// BeginEdit starts edit-in-place on a message the actor wrote.
func (s *Session) BeginEdit(ctx context.Context, messageID string) error {
	id, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	target, ref, err := s.locate(messageID)
	if err != nil {
		return err
	}
	m, err := s.svc.Chat.GetMessage(ctx, target, ref)
	if err != nil {
		return err
	}
	if m.AuthorID != id.UserID {
		return fmt.Errorf("edit %s: %w", messageID, huddle_errors.ErrForbidden)
	}
	s.updateUI(func(c *uistate.Coordinator) { c.BeginEdit(messageID, m.Text) })
	return nil
}

func (s *Session) SetDraft(text string) {
	s.updateUI(func(c *uistate.Coordinator) { c.Edit.SetDraft(text) })
}

// CommitEdit saves the edit-in-place draft. An unchanged draft is not
// written.
func (s *Session) CommitEdit(ctx context.Context) error {
	var (
		messageID, text string
		changed         bool
	)
	s.updateUI(func(c *uistate.Coordinator) { messageID, text, changed = c.Edit.Commit() })
	if !changed {
		return nil
	}
	return s.Edit(ctx, messageID, text)
}

func (s *Session) CancelEdit() {
	s.updateUI(func(c *uistate.Coordinator) { c.Edit.Cancel() })
}

func (s *Session) UI() uistate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui.State()
}

func (s *Session) updateUI(fn func(c *uistate.Coordinator)) {
	s.mu.Lock()
	fn(s.ui)
	st := s.ui.State()
	s.mu.Unlock()
	s.emit(Event{Type: EventUI, Payload: st})
}

func (s *Session) resetUI() {
	s.updateUI(func(c *uistate.Coordinator) { c.Reset() })
}

func (s *Session) Heartbeat(ctx context.Context) error {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	return s.svc.Users.Heartbeat(ctx)
}

func (s *Session) SetStatus(ctx context.Context, status string) error {
	_, ctx, err := s.actor(ctx)
	if err != nil {
		return err
	}
	return s.svc.Users.SetStatus(ctx, status)
}

// Timeline returns the last published timeline frame.
func (s *Session) Timeline() TimelineFrame {
	return s.frame(s.stream.Current())
}

func (s *Session) Thread() thread.View {
	return s.thread.View()
}

// Close releases every subscription and marks the user's connection gone.
// It is safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unwatch := s.unwatch
	s.mu.Unlock()

	unwatch()
	if id := s.state.Current(); id != nil {
		if p := s.svc.deps.Presence; p != nil {
			if err := p.Disconnect(ctx, id.UserID, s.id); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warnf("presence disconnect for %s: %v", id.UserID, err)
			}
		}
	}
	s.thread.Close()
	s.stream.Close()
}
