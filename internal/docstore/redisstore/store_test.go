package redisstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"huddle-chat/internal/docstore"
	huddle_errors "huddle-chat/pkg/errors"
)

type doc struct {
	Text      string `json:"text,omitempty"`
	Count     int    `json:"count"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func newStore(t *testing.T, mr *miniredis.Miniredis, opts ...Option) *Store {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, opts...)
	t.Cleanup(func() {
		_ = s.Close()
		_ = client.Close()
	})
	return s
}

func readCount(t *testing.T, s *Store, path string) int {
	t.Helper()
	snap, err := s.Get(context.Background(), path)
	require.NoError(t, err)
	var d doc
	require.NoError(t, snap.DataTo(&d))
	return d.Count
}

func increment(ctx context.Context, tx docstore.Tx, path string) error {
	snap, err := tx.Get(path)
	if err != nil {
		return err
	}
	var d doc
	if err := snap.DataTo(&d); err != nil {
		return err
	}
	return tx.Update(path, map[string]any{"count": d.Count + 1})
}

func TestCRUD(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr)
	ctx := context.Background()

	snap, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	require.NoError(t, s.Set(ctx, "users/u1", doc{Text: "ada", Count: 1}))
	snap, err = s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Positive(t, snap.Version)

	require.NoError(t, s.Update(ctx, "users/u1", map[string]any{"count": 5}))
	assert.Equal(t, 5, readCount(t, s, "users/u1"))

	assert.ErrorIs(t, s.Update(ctx, "users/nobody", map[string]any{"count": 1}), huddle_errors.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "users/u1"))
	snap, err = s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	snaps, err := s.Query(ctx, docstore.Query{Collection: "users"})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestQueryOrdering(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr)
	ctx := context.Background()
	col := "conversations/a_b/messages"

	require.NoError(t, s.Set(ctx, col+"/m2", doc{CreatedAt: "2024-03-10T10:05:00Z"}))
	require.NoError(t, s.Set(ctx, col+"/m1", doc{CreatedAt: "2024-03-10T10:00:00Z"}))
	require.NoError(t, s.Set(ctx, col+"/m3", doc{Text: "no timestamp"}))

	snaps, err := s.Query(ctx, docstore.Query{Collection: col, OrderBy: "createdAt"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "m1", snaps[0].ID)
	assert.Equal(t, "m2", snaps[1].ID)
}

func TestTransactionRetriesAfterOutsideWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr)
	other := newStore(t, mr)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "counters/c", doc{Count: 0}))

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		if err := increment(ctx, tx, "counters/c"); err != nil {
			return err
		}
		if attempts == 1 {
			return other.Set(ctx, "counters/c", doc{Count: 10})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 11, readCount(t, s, "counters/c"))
}

func TestConcurrentIncrements(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "counters/c", doc{Count: 0}))

	const n = 30
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
				return increment(ctx, tx, "counters/c")
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, n, readCount(t, s, "counters/c"))
}

func TestCloseStopsChangeFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := New(client)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users/u1", doc{Text: "ada"}))
	unsub, err := s.WatchDocument(ctx, "users/u1", func(docstore.Snapshot, error) {})
	require.NoError(t, err)
	defer unsub()

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestWatchSeesWritesFromAnotherStore(t *testing.T) {
	mr := miniredis.RunT(t)
	watcher := newStore(t, mr)
	writer := newStore(t, mr)
	ctx := context.Background()
	col := "channels/general/messages"

	var latest atomic.Int32
	latest.Store(-1)
	unsub, err := watcher.WatchQuery(ctx, docstore.Query{Collection: col, OrderBy: "createdAt"}, func(snaps []docstore.Snapshot, err error) {
		assert.NoError(t, err)
		latest.Store(int32(len(snaps)))
	})
	require.NoError(t, err)
	defer unsub()

	assert.Eventually(t, func() bool { return latest.Load() == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Set(ctx, col+"/m1", doc{CreatedAt: "2024-03-10T10:00:00Z"}))
	assert.Eventually(t, func() bool { return latest.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}
