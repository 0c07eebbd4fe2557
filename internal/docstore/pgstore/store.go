// Package pgstore keeps docstore documents in a single PostgreSQL table.
//
// Transactions run at SERIALIZABLE isolation; serialization failures and
// deadlocks are conflicts and the transaction function is retried. Writes
// are announced with NOTIFY so every process listening on the same database
// wakes its watchers.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle-chat/internal/docstore"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

const DefaultChannel = "docstore_changes"

const schema = `
CREATE SEQUENCE IF NOT EXISTS documents_version_seq;

CREATE TABLE IF NOT EXISTS documents (
	path       text PRIMARY KEY,
	collection text NOT NULL,
	data       jsonb NOT NULL,
	version    bigint NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
`

type Store struct {
	pool        *pgxpool.Pool
	channel     string
	hub         *docstore.Hub
	maxAttempts int
	logger      *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Store)

func WithChannel(channel string) Option {
	return func(s *Store) { s.channel = channel }
}

func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New ensures the schema exists and starts listening for change
// notifications. The pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	s := &Store{
		pool:        pool,
		channel:     DefaultChannel,
		hub:         docstore.NewHub(),
		maxAttempts: docstore.DefaultMaxAttempts,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger).Named("docstore.postgres")

	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(lctx)
	return s, nil
}

// EnsureSchema creates the documents table when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create documents schema: %w", err)
	}
	return nil
}

// DropSchema removes the documents table and its version sequence.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS documents; DROP SEQUENCE IF EXISTS documents_version_seq;`)
	return err
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warnf("notification listener interrupted: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return err
	}
	s.hub.NotifyAll()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.hub.Notify(n.Payload)
	}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) read(ctx context.Context, q queryer, path string) (docstore.Snapshot, error) {
	snap := docstore.Snapshot{Path: path, ID: docstore.ID(path)}
	var data []byte
	err := q.QueryRow(ctx, `SELECT data, version FROM documents WHERE path = $1`, path).Scan(&data, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return docstore.Snapshot{}, classify(fmt.Errorf("read %s: %w", path, err))
	}
	snap.Exists = true
	snap.Data = data
	return snap, nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return docstore.Snapshot{}, err
	}
	return s.read(ctx, s.pool, path)
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

	rows, err := s.pool.Query(ctx, `SELECT path, data, version FROM documents WHERE collection = $1`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var snaps []docstore.Snapshot
	for rows.Next() {
		var (
			path    string
			data    []byte
			version int64
		)
		if err := rows.Scan(&path, &data, &version); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		snaps = append(snaps, docstore.Snapshot{
			Path:    path,
			ID:      docstore.ID(path),
			Exists:  true,
			Version: version,
			Data:    data,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
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
		written, err := s.attempt(ctx, fn)
		if err != nil {
			return classify(err)
		}
		if len(written) > 0 {
			s.hub.Notify(written...)
		}
		return nil
	})
}

func (s *Store) attempt(ctx context.Context, fn docstore.TxFunc) ([]string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	state := docstore.NewTxState(func(path string) (docstore.Snapshot, error) {
		return s.read(ctx, tx, path)
	})
	if err := fn(ctx, state); err != nil {
		return nil, err
	}

	writes := state.Writes()
	if len(writes) == 0 {
		return nil, nil
	}

	written := make([]string, 0, len(writes))
	for _, w := range writes {
		if w.Delete {
			_, err = tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, w.Path)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO documents (path, collection, data, version, updated_at)
				VALUES ($1, $2, $3::jsonb, nextval('documents_version_seq'), now())
				ON CONFLICT (path) DO UPDATE
				SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = now()`,
				w.Path, docstore.Collection(w.Path), string(w.Data))
		}
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", w.Path, err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, w.Path); err != nil {
			return nil, fmt.Errorf("notify %s: %w", w.Path, err)
		}
		written = append(written, w.Path)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// classify maps serialization failures and deadlocks to ErrConflict.
func classify(err error) error {
	if isRetryable(err) {
		return fmt.Errorf("%v: %w", err, huddle_errors.ErrConflict)
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// ActiveListeners reports how many watches are attached.
func (s *Store) ActiveListeners() int {
	return s.hub.Active()
}

func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return nil
}
