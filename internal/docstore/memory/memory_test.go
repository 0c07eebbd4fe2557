package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"huddle-chat/internal/docstore"
	huddle_errors "huddle-chat/pkg/errors"
)

type doc struct {
	Text      string `json:"text"`
	Count     int    `json:"count,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func TestGetMissingDocument(t *testing.T) {
	s := New()
	snap, err := s.Get(context.Background(), "channels/general")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "general", snap.ID)
}

func TestSetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "channels/general", doc{Text: "hi", Count: 1}))
	require.NoError(t, s.Update(ctx, "channels/general", map[string]any{"count": 2, "text": docstore.DeleteField}))

	snap, err := s.Get(ctx, "channels/general")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, snap.DataTo(&got))
	assert.Equal(t, map[string]any{"count": float64(2)}, got)

	require.NoError(t, s.Delete(ctx, "channels/general"))
	snap, err = s.Get(ctx, "channels/general")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestUpdateMissingDocument(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "channels/nope", map[string]any{"a": 1})
	assert.ErrorIs(t, err, huddle_errors.ErrNotFound)
}

func TestInvalidPaths(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "channels")
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)

	_, err = s.Query(ctx, docstore.Query{Collection: "channels/general"})
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)
}

func TestQueryOrdersAndSkipsMissingField(t *testing.T) {
	ctx := context.Background()
	s := New()
	col := "channels/general/messages"

	require.NoError(t, s.Set(ctx, col+"/b", doc{Text: "second", CreatedAt: "2024-03-10T10:05:00Z"}))
	require.NoError(t, s.Set(ctx, col+"/a", doc{Text: "first", CreatedAt: "2024-03-10T10:00:00Z"}))
	require.NoError(t, s.Set(ctx, col+"/c", doc{Text: "pending"}))
	require.NoError(t, s.Set(ctx, "channels/random/messages/x", doc{Text: "elsewhere", CreatedAt: "2024-03-10T09:00:00Z"}))

	snaps, err := s.Query(ctx, docstore.Query{Collection: col, OrderBy: "createdAt"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].ID)
	assert.Equal(t, "b", snaps[1].ID)

	snaps, err = s.Query(ctx, docstore.Query{Collection: col, OrderBy: "createdAt", Descending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "b", snaps[0].ID)
}

func TestTransactionRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "counters/c", doc{Count: 0}))

	var injected atomic.Bool
	s.beforeCommit = func() {
		if injected.CompareAndSwap(false, true) {
			s.mu.Lock()
			s.seq++
			s.docs["counters/c"] = record{data: []byte(`{"count":10}`), version: s.seq}
			s.mu.Unlock()
		}
	}

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		snap, err := tx.Get("counters/c")
		if err != nil {
			return err
		}
		var d doc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		return tx.Update("counters/c", map[string]any{"count": d.Count + 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	snap, err := s.Get(ctx, "counters/c")
	require.NoError(t, err)
	var d doc
	require.NoError(t, snap.DataTo(&d))
	assert.Equal(t, 11, d.Count)
}

func TestTransactionAbortsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := New(WithMaxAttempts(3))
	require.NoError(t, s.Set(ctx, "counters/c", doc{Count: 0}))

	s.beforeCommit = func() {
		s.mu.Lock()
		s.seq++
		s.docs["counters/c"] = record{data: []byte(`{"count":0}`), version: s.seq}
		s.mu.Unlock()
	}

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		if _, err := tx.Get("counters/c"); err != nil {
			return err
		}
		return tx.Update("counters/c", map[string]any{"count": 1})
	})
	assert.ErrorIs(t, err, huddle_errors.ErrAborted)
	assert.Equal(t, 3, attempts)
}

func TestTransactionErrorIsNotRetried(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	attempts := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestConcurrentIncrementsAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "counters/c", doc{Count: 0}))

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
				snap, err := tx.Get("counters/c")
				if err != nil {
					return err
				}
				var d doc
				if err := snap.DataTo(&d); err != nil {
					return err
				}
				return tx.Update("counters/c", map[string]any{"count": d.Count + 1})
			})
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Get(ctx, "counters/c")
	require.NoError(t, err)
	var d doc
	require.NoError(t, snap.DataTo(&d))
	assert.Equal(t, 20, d.Count)
}

func TestWatchDocumentDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := New()

	var mu sync.Mutex
	var seen []bool
	unsub, err := s.WatchDocument(ctx, "channels/general", func(snap docstore.Snapshot, err error) {
		assert.NoError(t, err)
		mu.Lock()
		seen = append(seen, snap.Exists)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Set(ctx, "channels/general", doc{Text: "x"}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2 && seen[len(seen)-1]
	}, time.Second, 5*time.Millisecond)

	unsub()
	assert.Equal(t, 0, s.ActiveListeners())

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	require.NoError(t, s.Set(ctx, "channels/general", doc{Text: "y"}))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(seen))
	mu.Unlock()
}

func TestWatchQueryIgnoresOtherCollections(t *testing.T) {
	ctx := context.Background()
	s := New()
	col := "channels/general/messages"

	var calls atomic.Int32
	var latest atomic.Value
	unsub, err := s.WatchQuery(ctx, docstore.Query{Collection: col, OrderBy: "createdAt"}, func(snaps []docstore.Snapshot, err error) {
		assert.NoError(t, err)
		calls.Add(1)
		latest.Store(len(snaps))
	})
	require.NoError(t, err)
	defer unsub()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Set(ctx, "channels/random/messages/x", doc{CreatedAt: "2024-03-10T09:00:00Z"}))
	require.NoError(t, s.Set(ctx, col+"/a", doc{CreatedAt: "2024-03-10T10:00:00Z"}))

	assert.Eventually(t, func() bool {
		v, _ := latest.Load().(int)
		return v == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}
