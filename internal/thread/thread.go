// Package thread keeps the reply view of one root message open at a time.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/repository"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

var ErrNotOpen = errors.New("no thread is open")

// Repository is the part of the message repository a thread needs.
type Repository interface {
	WatchMessage(ctx context.Context, target domain.Target, ref repository.MessageRef, fn repository.MessageListener) (docstore.Unsubscribe, error)
	WatchReplies(ctx context.Context, target domain.Target, rootID string, fn repository.MessagesListener) (docstore.Unsubscribe, error)
	SendReply(ctx context.Context, target domain.Target, rootID string, reply *message.Message) (*message.Message, error)
	EditMessage(ctx context.Context, target domain.Target, ref repository.MessageRef, text string) error
	DeleteMessage(ctx context.Context, target domain.Target, ref repository.MessageRef) error
	ToggleReaction(ctx context.Context, target domain.Target, ref repository.MessageRef, emoji, userID string) (repository.ToggleResult, error)
}

type Header struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// View is the transient state of the thread panel.
type View struct {
	Open    bool               `json:"open"`
	Header  Header             `json:"header"`
	Target  domain.Target      `json:"target"`
	IsDM    bool               `json:"isDm"`
	Root    *message.Message   `json:"root,omitempty"`
	Replies []*message.Message `json:"replies"`
}

// Thread is closed until Open attaches two subscriptions, one on the root
// message and one on its replies. Opening another thread tears the current
// subscriptions down first. The thread closes itself when the root message
// disappears.
//
// emit receives every view change with the thread's lock held and must not
// call back into the thread.
type Thread struct {
	repo   Repository
	emit   func(View)
	logger *logger.Logger

	// switchMu serializes Open and Close and is always taken before mu.
	switchMu sync.Mutex

	mu   sync.Mutex
	gen  uint64
	view View
	subs []docstore.Unsubscribe
}

func New(repo Repository, emit func(View), l *logger.Logger) *Thread {
	if emit == nil {
		emit = func(View) {}
	}
	return &Thread{
		repo:   repo,
		emit:   emit,
		logger: logger.OrNop(l).Named("thread"),
	}
}

func (t *Thread) Open(ctx context.Context, target domain.Target, root *message.Message, header Header) error {
	if !target.Valid() || root == nil || root.ID == "" {
		return fmt.Errorf("open thread: %w", huddle_errors.ErrInvalidInput)
	}
	if root.IsReply() {
		return fmt.Errorf("open thread on reply %s: %w", root.ID, huddle_errors.ErrInvalidInput)
	}

	t.switchMu.Lock()
	defer t.switchMu.Unlock()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	old := t.subs
	t.subs = nil
	rootCopy := *root
	t.view = View{
		Open:   true,
		Header: header,
		Target: target,
		IsDM:   target.IsDM(),
		Root:   &rootCopy,
	}
	t.emit(t.view)
	t.mu.Unlock()

	release(old)

	unsubRoot, err := t.repo.WatchMessage(ctx, target, repository.RootRef(root.ID), func(m *message.Message, err error) {
		t.onRoot(gen, m, err)
	})
	if err != nil {
		t.abort(gen)
		return fmt.Errorf("watch thread root %s: %w", root.ID, err)
	}
	unsubReplies, err := t.repo.WatchReplies(ctx, target, root.ID, func(replies []*message.Message, err error) {
		t.onReplies(gen, replies, err)
	})
	if err != nil {
		unsubRoot()
		t.abort(gen)
		return fmt.Errorf("watch thread replies %s: %w", root.ID, err)
	}

	t.mu.Lock()
	if gen == t.gen {
		t.subs = []docstore.Unsubscribe{unsubRoot, unsubReplies}
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	// the root vanished before both subscriptions were attached
	unsubRoot()
	unsubReplies()
	return nil
}

// Close detaches the subscriptions and empties the view. It is safe to call
// on a closed thread.
func (t *Thread) Close() {
	t.switchMu.Lock()
	defer t.switchMu.Unlock()

	t.mu.Lock()
	subs := t.closeLocked()
	t.mu.Unlock()

	release(subs)
}

func (t *Thread) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	v.Replies = append([]*message.Message(nil), t.view.Replies...)
	return v
}

func (t *Thread) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view.Open
}

// closeLocked resets the view and hands back the subscriptions to release.
func (t *Thread) closeLocked() []docstore.Unsubscribe {
	t.gen++
	subs := t.subs
	t.subs = nil
	wasOpen := t.view.Open
	t.view = View{}
	if wasOpen {
		t.emit(t.view)
	}
	return subs
}

func (t *Thread) abort(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen == t.gen {
		t.closeLocked()
	}
}

func (t *Thread) onRoot(gen uint64, m *message.Message, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	switch {
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			t.logger.Warnf("thread root %s watch failed, keeping last state: %v", t.view.Root.ID, err)
		}
	case m == nil:
		t.logger.Infof("thread root %s is gone, closing thread", t.view.Root.ID)
		subs := t.closeLocked()
		// Unsubscribe waits for this callback to return.
		go release(subs)
	default:
		t.view.Root = m
		t.emit(t.view)
	}
}

func (t *Thread) onReplies(gen uint64, replies []*message.Message, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			t.logger.Warnf("thread replies of %s degraded to empty: %v", t.view.Root.ID, err)
		}
		replies = nil
	}
	t.view.Replies = replies
	t.emit(t.view)
}

// Route returns where messageID lives inside the open thread: the root
// document when it is the root id, the reply sub-collection otherwise.
func (t *Thread) Route(messageID string) (domain.Target, repository.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.view.Open {
		return domain.Target{}, repository.MessageRef{}, ErrNotOpen
	}
	rootID := t.view.Root.ID
	if messageID == rootID {
		return t.view.Target, repository.RootRef(rootID), nil
	}
	return t.view.Target, repository.ReplyRef(rootID, messageID), nil
}

func (t *Thread) Reply(ctx context.Context, reply *message.Message) (*message.Message, error) {
	t.mu.Lock()
	open, target := t.view.Open, t.view.Target
	var rootID string
	if open {
		rootID = t.view.Root.ID
	}
	t.mu.Unlock()
	if !open {
		return nil, ErrNotOpen
	}
	return t.repo.SendReply(ctx, target, rootID, reply)
}

func (t *Thread) Edit(ctx context.Context, messageID, text string) error {
	target, ref, err := t.Route(messageID)
	if err != nil {
		return err
	}
	return t.repo.EditMessage(ctx, target, ref, text)
}

// Delete removes the root (and with it the thread) or a single reply.
func (t *Thread) Delete(ctx context.Context, messageID string) error {
	target, ref, err := t.Route(messageID)
	if err != nil {
		return err
	}
	return t.repo.DeleteMessage(ctx, target, ref)
}

func (t *Thread) ToggleReaction(ctx context.Context, messageID, emoji, userID string) (repository.ToggleResult, error) {
	target, ref, err := t.Route(messageID)
	if err != nil {
		return repository.ToggleResult{}, err
	}
	return t.repo.ToggleReaction(ctx, target, ref, emoji, userID)
}

func release(subs []docstore.Unsubscribe) {
	for _, unsub := range subs {
		unsub()
	}
}
