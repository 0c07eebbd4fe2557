package docstore

import (
	"context"
	"sync"
)

type listener struct {
	key    string
	kick   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// Hub fans write notifications out to listeners. Each listener owns one
// goroutine that re-reads and delivers serially; notifications that arrive
// while a read is in flight coalesce into a single follow-up read, so a slow
// listener sees the latest state rather than every intermediate one.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[*listener]struct{})}
}

// Notify wakes the listeners of a written document and of its collection.
func (h *Hub) Notify(paths ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range paths {
		h.kickLocked(p)
		h.kickLocked(Collection(p))
	}
}

// NotifyAll wakes every listener. Backends call it after reconnecting to their
// change feed, since notifications may have been missed.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.listeners {
		for l := range set {
			kick(l)
		}
	}
}

func (h *Hub) kickLocked(key string) {
	for l := range h.listeners[key] {
		kick(l)
	}
}

func kick(l *listener) {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Listen runs refresh once immediately and again after every notification on
// key, until the returned Unsubscribe is called or ctx ends.
func (h *Hub) Listen(ctx context.Context, key string, refresh func(ctx context.Context)) Unsubscribe {
	lctx, cancel := context.WithCancel(ctx)
	l := &listener{
		key:    key,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	h.mu.Lock()
	set, ok := h.listeners[key]
	if !ok {
		set = make(map[*listener]struct{})
		h.listeners[key] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(l.done)
		defer h.remove(l)
		for {
			select {
			case <-l.stop:
				return
			default:
			}
			refresh(lctx)
			select {
			case <-l.stop:
				return
			case <-lctx.Done():
				return
			case <-l.kick:
			}
		}
	}()

	return func() {
		l.once.Do(func() {
			h.remove(l)
			close(l.stop)
			l.cancel()
		})
		<-l.done
	}
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.listeners[l.key]
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, l.key)
	}
}

// Active reports how many listeners are attached.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, set := range h.listeners {
		n += len(set)
	}
	return n
}

// WatchDocument attaches a document listener that re-reads through get. A
// delivery is skipped when the document is unchanged since the last one.
func (h *Hub) WatchDocument(ctx context.Context, path string, get func(ctx context.Context, path string) (Snapshot, error), fn DocumentListener) Unsubscribe {
	var (
		delivered bool
		last      Snapshot
	)
	return h.Listen(ctx, path, func(ctx context.Context) {
		snap, err := get(ctx, path)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delivered = false
			fn(Snapshot{Path: path, ID: ID(path)}, err)
			return
		}
		if delivered && snap.Exists == last.Exists && snap.Version == last.Version {
			return
		}
		delivered, last = true, snap
		fn(snap, nil)
	})
}

// WatchQuery attaches a query listener that re-runs the query through run.
// A delivery is skipped when no document in the result changed.
func (h *Hub) WatchQuery(ctx context.Context, q Query, run func(ctx context.Context, q Query) ([]Snapshot, error), fn QueryListener) Unsubscribe {
	var (
		delivered bool
		last      []Snapshot
	)
	return h.Listen(ctx, q.Collection, func(ctx context.Context) {
		snaps, err := run(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delivered = false
			fn(nil, err)
			return
		}
		if delivered && sameResult(last, snaps) {
			return
		}
		delivered, last = true, snaps
		fn(snaps, nil)
	})
}

func sameResult(a, b []Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Version != b[i].Version {
			return false
		}
	}
	return true
}
