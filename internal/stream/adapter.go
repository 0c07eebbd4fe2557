// Package stream keeps a live, display-ready message list for whatever
// channel or DM the user has selected.
package stream

import (
	"context"
	"errors"
	"sync"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/repository"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

// ErrNoSelection is returned when a resolved target is needed but nothing
// is selected.
var ErrNoSelection = errors.New("no conversation selected")

type MessageSource interface {
	GetMessageStream(ctx context.Context, target domain.Target, fn repository.MessagesListener) (docstore.Unsubscribe, error)
}

type UserDirectory interface {
	Watch(ctx context.Context, fn func([]*user.User, error)) (docstore.Unsubscribe, error)
}

// Update is one emission of the adapter. Target is the zero value when
// nothing is selected or nobody is signed in.
type Update struct {
	Selection Selection
	Target    domain.Target
	Messages  []MessageView
}

// Adapter re-subscribes whenever the selection, the signed-in user or an
// explicit refresh changes what should be shown. The previous subscriptions
// are released before new ones are opened, and callbacks that belong to a
// released generation are dropped.
//
// emit is called with the adapter's lock held, so emissions are ordered. It
// must not call back into the adapter.
type Adapter struct {
	messages MessageSource
	users    UserDirectory
	emit     func(Update)
	logger   *logger.Logger

	// switchMu serializes re-subscriptions and is always taken before mu.
	switchMu sync.Mutex

	mu        sync.Mutex
	userID    string
	selection Selection
	shown     Selection
	target    domain.Target
	gen       uint64
	msgs      []*message.Message
	directory map[string]*user.User
	current   []MessageView
	subs      []docstore.Unsubscribe
	closed    bool
}

func NewAdapter(messages MessageSource, users UserDirectory, emit func(Update), l *logger.Logger) *Adapter {
	if emit == nil {
		emit = func(Update) {}
	}
	return &Adapter{
		messages: messages,
		users:    users,
		emit:     emit,
		logger:   logger.OrNop(l).Named("stream"),
	}
}

// SetUser switches the signed-in user. An empty id signs out and empties
// the stream.
func (a *Adapter) SetUser(ctx context.Context, userID string) {
	a.mu.Lock()
	a.userID = userID
	a.mu.Unlock()
	a.resubscribe(ctx)
}

func (a *Adapter) Select(ctx context.Context, sel Selection) {
	a.mu.Lock()
	a.selection = sel
	a.mu.Unlock()
	a.resubscribe(ctx)
}

// Refresh drops the current subscriptions and opens fresh ones for the
// same selection.
func (a *Adapter) Refresh(ctx context.Context) {
	a.resubscribe(ctx)
}

// Close releases the subscriptions. Later calls are no-ops.
func (a *Adapter) Close() {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	a.mu.Lock()
	a.closed = true
	a.gen++
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	release(subs)
}

// Current returns the target and the views last emitted.
func (a *Adapter) Current() Update {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Update{Selection: a.shown, Target: a.target, Messages: a.current}
}

func (a *Adapter) Selection() Selection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selection
}

func (a *Adapter) resubscribe(ctx context.Context) {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.gen++
	gen := a.gen
	old := a.subs
	a.subs = nil
	a.msgs = nil
	a.directory = nil
	userID, sel := a.userID, a.selection
	a.mu.Unlock()

	release(old)

	if userID == "" || sel.Empty() {
		a.reset(gen, sel, domain.Target{})
		return
	}
	target, err := sel.Target(userID)
	if err != nil {
		a.logger.Warnf("cannot resolve selection %s/%s: %v", sel.Kind, sel.ID, err)
		a.reset(gen, sel, domain.Target{})
		return
	}
	a.reset(gen, sel, target)

	var subs []docstore.Unsubscribe
	if a.users != nil {
		unsub, err := a.users.Watch(ctx, func(users []*user.User, err error) {
			a.onUsers(gen, users, err)
		})
		if err != nil {
			a.logger.Warnf("user directory unavailable: %v", err)
		} else {
			subs = append(subs, unsub)
		}
	}

	unsub, err := a.messages.GetMessageStream(ctx, target, func(msgs []*message.Message, err error) {
		a.onMessages(gen, msgs, err)
	})
	if err != nil {
		a.logger.Warnf("message stream for %s %s failed: %v", target.Kind, target.ID, err)
		release(subs)
		return
	}
	subs = append(subs, unsub)

	a.mu.Lock()
	a.subs = subs
	a.mu.Unlock()
}

// reset records the new target and emits an empty list for it.
func (a *Adapter) reset(gen uint64, sel Selection, target domain.Target) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.shown = sel
	a.target = target
	a.publishLocked()
}

func (a *Adapter) onMessages(gen uint64, msgs []*message.Message, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warnf("message stream for %s %s degraded to empty: %v", a.target.Kind, a.target.ID, err)
		}
		msgs = nil
	}
	a.msgs = msgs
	a.publishLocked()
}

func (a *Adapter) onUsers(gen uint64, users []*user.User, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	if err != nil {
		a.logger.Warnf("user directory degraded, using stored author names: %v", err)
		a.directory = nil
	} else {
		a.directory = make(map[string]*user.User, len(users))
		for _, u := range users {
			a.directory[u.ID] = u
		}
	}
	if a.msgs != nil {
		a.publishLocked()
	}
}

func (a *Adapter) publishLocked() {
	a.current = BuildViews(a.msgs, a.directory, a.userID)
	a.emit(Update{Selection: a.shown, Target: a.target, Messages: a.current})
}

func release(subs []docstore.Unsubscribe) {
	for _, unsub := range subs {
		unsub()
	}
}

// Target returns the resolved target of the current selection.
func (a *Adapter) Target() (domain.Target, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userID == "" {
		return domain.Target{}, huddle_errors.ErrNotAuthenticated
	}
	if a.selection.Empty() {
		return domain.Target{}, ErrNoSelection
	}
	return a.selection.Target(a.userID)
}
