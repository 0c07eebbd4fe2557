package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	huddle_errors "huddle-chat/pkg/errors"
)

// Write is a buffered transaction write.
type Write struct {
	Path   string
	Delete bool
	Data   json.RawMessage
}

// TxState buffers the reads and writes of one transaction attempt. Backends
// supply the read function and apply Writes at commit time after checking the
// versions recorded in Reads.
type TxState struct {
	read   func(path string) (Snapshot, error)
	reads  map[string]Snapshot
	writes map[string]Write
	order  []string
}

func NewTxState(read func(path string) (Snapshot, error)) *TxState {
	return &TxState{
		read:   read,
		reads:  make(map[string]Snapshot),
		writes: make(map[string]Write),
	}
}

func (t *TxState) Get(path string) (Snapshot, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return Snapshot{}, err
	}
	if w, ok := t.writes[path]; ok {
		snap := Snapshot{Path: path, ID: ID(path), Exists: !w.Delete, Data: w.Data}
		if r, ok := t.reads[path]; ok {
			snap.Version = r.Version
		}
		return snap, nil
	}
	if r, ok := t.reads[path]; ok {
		return r, nil
	}
	snap, err := t.read(path)
	if err != nil {
		return Snapshot{}, err
	}
	t.reads[path] = snap
	return snap, nil
}

func (t *TxState) Set(path string, data any) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	raw, err := Encode(data)
	if err != nil {
		return err
	}
	t.put(Write{Path: path, Data: raw})
	return nil
}

func (t *TxState) Update(path string, fields map[string]any) error {
	cur, err := t.Get(path)
	if err != nil {
		return err
	}
	if !cur.Exists {
		return fmt.Errorf("update %s: %w", path, huddle_errors.ErrNotFound)
	}
	merged, err := MergeFields(cur.Data, fields)
	if err != nil {
		return err
	}
	t.put(Write{Path: path, Data: merged})
	return nil
}

func (t *TxState) Delete(path string) error {
	if err := ValidateDocumentPath(path); err != nil {
		return err
	}
	t.put(Write{Path: path, Delete: true})
	return nil
}

func (t *TxState) put(w Write) {
	if _, ok := t.writes[w.Path]; !ok {
		t.order = append(t.order, w.Path)
	}
	t.writes[w.Path] = w
}

// Reads returns the snapshots observed by the attempt, keyed by path.
func (t *TxState) Reads() map[string]Snapshot {
	return t.reads
}

// Writes returns the buffered writes in first-write order.
func (t *TxState) Writes() []Write {
	out := make([]Write, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, t.writes[p])
	}
	return out
}

// Retry runs attempt until it succeeds, fails with something other than
// ErrConflict, or maxAttempts is reached. Exhaustion yields ErrAborted.
func Retry(ctx context.Context, maxAttempts int, attempt func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(ctx)
		if err == nil || !errors.Is(err, huddle_errors.ErrConflict) {
			return err
		}
		lastErr = err
		if i == maxAttempts-1 {
			break
		}

		t := time.NewTimer(Backoff(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w: %v", huddle_errors.ErrAborted, lastErr)
}

const (
	backoffBase = 2 * time.Millisecond
	backoffMax  = 100 * time.Millisecond
)

// Backoff is the wait after the given failed attempt (zero based): a random
// duration up to an exponentially growing ceiling, capped at backoffMax.
func Backoff(attempt int) time.Duration {
	ceiling := backoffMax
	if attempt < 16 {
		if d := backoffBase << attempt; d < backoffMax {
			ceiling = d
		}
	}
	return time.Millisecond + time.Duration(rand.Int64N(int64(ceiling)))
}
