package auth

import (
	"sync"

	huddle_errors "huddle-chat/pkg/errors"
)

type Listener func(id *Identity)

// State is the auth state stream of one client: the signed-in identity or
// none. Listeners are called synchronously, in registration order, on the
// goroutine that changed the state.
type State struct {
	verifier *Verifier

	// notifyMu keeps notifications in the order the changes happened.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   *Identity
	nextID    int
	listeners map[int]Listener
	order     []int
}

func NewState(v *Verifier) *State {
	return &State{verifier: v, listeners: make(map[int]Listener)}
}

func (s *State) SignIn(token string) (*Identity, error) {
	id, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	s.set(id)
	return id, nil
}

// SignOut clears the identity. Signing out twice notifies once.
func (s *State) SignOut() {
	s.set(nil)
}

func (s *State) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Require returns the current identity or ErrNotAuthenticated.
func (s *State) Require() (*Identity, error) {
	if id := s.Current(); id != nil {
		return id, nil
	}
	return nil, huddle_errors.ErrNotAuthenticated
}

// Watch calls fn with the current identity right away and again on every
// change until the returned function is called.
func (s *State) Watch(fn Listener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	current := s.current
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *State) set(id *Identity) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.current == nil && id == nil {
		s.mu.Unlock()
		return
	}
	s.current = id
	var fns []Listener
	kept := s.order[:0]
	for _, lid := range s.order {
		if fn, ok := s.listeners[lid]; ok {
			fns = append(fns, fn)
			kept = append(kept, lid)
		}
	}
	s.order = kept
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}
