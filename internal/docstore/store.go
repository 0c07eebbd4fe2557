// Package docstore is the narrow interface huddle-chat uses to talk to its
// remote document store: document CRUD by path, ordered collection queries,
// realtime listeners and optimistic transactions retried on conflict.
//
// Paths alternate collection and document segments, the way hosted document
// databases address data: "channels/general/messages/m1" is the document "m1"
// in the collection "channels/general/messages".
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	huddle_errors "huddle-chat/pkg/errors"
)

// DefaultMaxAttempts is how many times a transaction function runs before the
// store gives up with ErrAborted.
const DefaultMaxAttempts = 25

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	Path    string
	ID      string
	Exists  bool
	Version int64
	Data    json.RawMessage
}

// DataTo decodes the document into v.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("%s: %w", s.Path, huddle_errors.ErrNotFound)
	}
	return json.Unmarshal(s.Data, v)
}

// Query selects the documents of one collection.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	Limit      int
}

// Unsubscribe detaches a listener. It returns once the listener goroutine has
// exited, so it must not be called from inside that listener's callback.
type Unsubscribe func()

// DocumentListener receives every fresher state of a watched document.
type DocumentListener func(snap Snapshot, err error)

// QueryListener receives every fresher result of a watched query.
type QueryListener func(snaps []Snapshot, err error)

// Tx is the view of the store inside RunTransaction. Reads register the
// version they observed; the commit fails with ErrConflict when any of them
// changed in the meantime. Writes are buffered until commit.
type Tx interface {
	Get(path string) (Snapshot, error)
	Set(path string, data any) error
	Update(path string, fields map[string]any) error
	Delete(path string) error
}

// TxFunc is the body of a transaction. It may run several times.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, data any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)

	WatchDocument(ctx context.Context, path string, fn DocumentListener) (Unsubscribe, error)
	WatchQuery(ctx context.Context, q Query, fn QueryListener) (Unsubscribe, error)

	RunTransaction(ctx context.Context, fn TxFunc) error

	Close() error
}

type deleteField struct{}

// DeleteField removes a top-level key when passed as a value to Update.
var DeleteField = deleteField{}

// Join builds a path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Collection returns the collection part of a document path.
func Collection(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ID returns the last segment of a path.
func ID(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// ValidateDocumentPath checks that path names a document: an even, non-zero
// number of non-empty segments.
func ValidateDocumentPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("%q is not a document path: %w", path, huddle_errors.ErrInvalidInput)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%q has an empty segment: %w", path, huddle_errors.ErrInvalidInput)
		}
	}
	return nil
}

// ValidateCollectionPath checks that path names a collection.
func ValidateCollectionPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 1 {
		return fmt.Errorf("%q is not a collection path: %w", path, huddle_errors.ErrInvalidInput)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%q has an empty segment: %w", path, huddle_errors.ErrInvalidInput)
		}
	}
	return nil
}

// Encode marshals document data to JSON. Only JSON objects are documents.
func Encode(data any) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("document data must be an object: %w", huddle_errors.ErrInvalidInput)
	}
	return b, nil
}

// MergeFields applies a top-level field update to an encoded document.
func MergeFields(current json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		if _, ok := v.(deleteField); ok {
			delete(doc, k)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		doc[k] = b
	}
	return json.Marshal(doc)
}
