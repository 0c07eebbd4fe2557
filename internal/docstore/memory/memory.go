// Package memory is an in-process docstore backend. It honours the same
// ordering, listener and optimistic-commit contract as the networked
// backends and is what the test suites and single-node deployments run on.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"huddle-chat/internal/docstore"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

type record struct {
	data    json.RawMessage
	version int64
}

type Store struct {
	mu     sync.RWMutex
	docs   map[string]record
	seq    int64
	closed bool

	hub         *docstore.Hub
	maxAttempts int
	logger      *logger.Logger

	// beforeCommit runs inside every commit attempt before versions are
	// checked. Tests use it to inject concurrent writes.
	beforeCommit func()
}

type Option func(*Store)

func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]record),
		hub:         docstore.NewHub(),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger).Named("docstore.memory")
	return s
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return docstore.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return docstore.Snapshot{}, huddle_errors.ErrClosed
	}
	return s.snapshotLocked(path), nil
}

func (s *Store) snapshotLocked(path string) docstore.Snapshot {
	snap := docstore.Snapshot{Path: path, ID: docstore.ID(path)}
	if rec, ok := s.docs[path]; ok {
		snap.Exists = true
		snap.Version = rec.version
		snap.Data = rec.data
	}
	return snap
}

func (s *Store) Set(ctx context.Context, path string, data any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(path, data)
	})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(path, fields)
	})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(path)
	})
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, huddle_errors.ErrClosed
	}
	var snaps []docstore.Snapshot
	for path := range s.docs {
		if docstore.Collection(path) == q.Collection {
			snaps = append(snaps, s.snapshotLocked(path))
		}
	}
	s.mu.RUnlock()

	return docstore.ApplyQuery(snaps, q), nil
}

func (s *Store) WatchDocument(ctx context.Context, path string, fn docstore.DocumentListener) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	return s.hub.WatchDocument(ctx, path, s.Get, fn), nil
}

func (s *Store) WatchQuery(ctx context.Context, q docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	return s.hub.WatchQuery(ctx, q, s.Query, fn), nil
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	return docstore.Retry(ctx, s.maxAttempts, func(ctx context.Context) error {
		tx := docstore.NewTxState(func(path string) (docstore.Snapshot, error) {
			return s.Get(ctx, path)
		})
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

func (s *Store) commit(tx *docstore.TxState) error {
	writes := tx.Writes()
	if len(writes) == 0 {
		return nil
	}

	if s.beforeCommit != nil {
		s.beforeCommit()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return huddle_errors.ErrClosed
	}
	for path, read := range tx.Reads() {
		if s.docs[path].version != read.Version {
			s.mu.Unlock()
			s.logger.Debugf("commit conflict on %s", path)
			return fmt.Errorf("%s changed since read: %w", path, huddle_errors.ErrConflict)
		}
	}

	paths := make([]string, 0, len(writes))
	for _, w := range writes {
		if w.Delete {
			delete(s.docs, w.Path)
		} else {
			s.seq++
			s.docs[w.Path] = record{data: w.Data, version: s.seq}
		}
		paths = append(paths, w.Path)
	}
	s.mu.Unlock()

	s.hub.Notify(paths...)
	return nil
}

// ActiveListeners reports how many watches are attached.
func (s *Store) ActiveListeners() int {
	return s.hub.Active()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
