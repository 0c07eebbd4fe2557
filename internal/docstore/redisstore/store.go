// Package redisstore keeps docstore documents in Redis.
//
// Each document is a hash at "<prefix>doc:<path>" holding the JSON body and a
// version drawn from a store-wide sequence. Collections are sets of member
// paths. Transactions WATCH every document they read and commit with
// MULTI/EXEC; a failed EXEC is a conflict and the transaction is retried.
// Every write is published on "<prefix>changes:<collection>" so that all
// processes sharing the Redis instance see each other's writes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"huddle-chat/internal/docstore"
	"huddle-chat/internal/redis"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

const DefaultPrefix = "huddle:"

type Store struct {
	client      *goredis.Client
	prefix      string
	hub         *docstore.Hub
	maxAttempts int
	logger      *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps client and starts following the change feed. Close stops it;
// the client itself stays owned by the caller.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{
		client:      client,
		prefix:      DefaultPrefix,
		hub:         docstore.NewHub(),
		maxAttempts: docstore.DefaultMaxAttempts,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger).Named("docstore.redis")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.follow(ctx)
	return s
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) docKey(path string) string       { return s.prefix + "doc:" + path }
func (s *Store) colKey(collection string) string { return s.prefix + "col:" + collection }
func (s *Store) seqKey() string                  { return s.prefix + "seq" }
func (s *Store) changes(collection string) string {
	return s.prefix + "changes:" + collection
}

// follow consumes the change feed, resubscribing after failures. Every
// (re)subscription wakes all listeners since writes may have been missed.
func (s *Store) follow(ctx context.Context) {
	defer close(s.done)

	sub := redis.NewSubscriber(s.client)
	channelPrefix := s.prefix + "changes:"
	for {
		err := sub.Subscribe(ctx, []string{channelPrefix + "*"}, s.hub.NotifyAll, func(channel string, payload []byte) {
			if strings.HasPrefix(channel, channelPrefix) {
				s.hub.Notify(string(payload))
			}
		})
		if ctx.Err() != nil {
			return
		}
		s.logger.Warnf("change feed interrupted: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *goredis.SliceCmd
}

func (s *Store) read(ctx context.Context, r hashReader, path string) (docstore.Snapshot, error) {
	vals, err := r.HMGet(ctx, s.docKey(path), "data", "version").Result()
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	return decode(path, vals)
}

func decode(path string, vals []interface{}) (docstore.Snapshot, error) {
	snap := docstore.Snapshot{Path: path, ID: docstore.ID(path)}
	if len(vals) != 2 || vals[0] == nil {
		return snap, nil
	}
	data, ok := vals[0].(string)
	if !ok {
		return snap, fmt.Errorf("read %s: unexpected data type %T", path, vals[0])
	}
	if v, ok := vals[1].(string); ok {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return snap, fmt.Errorf("read %s: bad version: %w", path, err)
		}
		snap.Version = version
	}
	snap.Exists = true
	snap.Data = []byte(data)
	return snap, nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return docstore.Snapshot{}, err
	}
	return s.read(ctx, s.client, path)
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

	paths, err := s.client.SMembers(ctx, s.colKey(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(paths))
	for i, p := range paths {
		cmds[i] = pipe.HMGet(ctx, s.docKey(p), "data", "version")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	snaps := make([]docstore.Snapshot, 0, len(paths))
	for i, p := range paths {
		snap, err := decode(p, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
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
		var written []string
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			state := docstore.NewTxState(func(path string) (docstore.Snapshot, error) {
				if err := tx.Watch(ctx, s.docKey(path)).Err(); err != nil {
					return docstore.Snapshot{}, fmt.Errorf("watch %s: %w", path, err)
				}
				return s.read(ctx, tx, path)
			})
			if err := fn(ctx, state); err != nil {
				return err
			}

			writes := state.Writes()
			if len(writes) == 0 {
				return nil
			}
			last, err := tx.IncrBy(ctx, s.seqKey(), int64(len(writes))).Result()
			if err != nil {
				return fmt.Errorf("allocate versions: %w", err)
			}
			first := last - int64(len(writes)) + 1

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for i, w := range writes {
					col := docstore.Collection(w.Path)
					if w.Delete {
						pipe.Del(ctx, s.docKey(w.Path))
						pipe.SRem(ctx, s.colKey(col), w.Path)
					} else {
						pipe.HSet(ctx, s.docKey(w.Path), "data", string(w.Data), "version", first+int64(i))
						pipe.SAdd(ctx, s.colKey(col), w.Path)
					}
					pipe.Publish(ctx, s.changes(col), w.Path)
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, w := range writes {
				written = append(written, w.Path)
			}
			return nil
		})
		if errors.Is(err, goredis.TxFailedErr) {
			s.logger.Debugf("transaction conflict, retrying")
			return fmt.Errorf("redis transaction: %w", huddle_errors.ErrConflict)
		}
		if err != nil {
			return err
		}
		if len(written) > 0 {
			s.hub.Notify(written...)
		}
		return nil
	})
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
