package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

type keyKind int

const (
	keyNumber keyKind = iota
	keyTime
	keyString
	keyBool
)

type orderKey struct {
	kind keyKind
	num  float64
	at   time.Time
	str  string
}

func (a orderKey) less(b orderKey) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	switch a.kind {
	case keyNumber:
		return a.num < b.num
	case keyTime:
		return a.at.Before(b.at)
	case keyBool:
		return !a.bool() && b.bool()
	default:
		return a.str < b.str
	}
}

func (a orderKey) bool() bool { return a.str == "true" }

// fieldKey extracts the value of a top-level field for ordering. Timestamps
// are stored as RFC 3339 strings and compared as instants.
func fieldKey(data json.RawMessage, field string) (orderKey, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return orderKey{}, false
	}
	raw, ok := doc[field]
	if !ok {
		return orderKey{}, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return orderKey{}, false
	}
	switch val := v.(type) {
	case float64:
		return orderKey{kind: keyNumber, num: val}, true
	case bool:
		if val {
			return orderKey{kind: keyBool, str: "true"}, true
		}
		return orderKey{kind: keyBool, str: "false"}, true
	case string:
		if at, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return orderKey{kind: keyTime, at: at}, true
		}
		return orderKey{kind: keyString, str: val}, true
	default:
		// null, objects and arrays are not orderable
		return orderKey{}, false
	}
}

// ApplyQuery filters, orders and limits the documents of a collection the way
// the managed store does: with an OrderBy field, documents that lack the field
// are left out. Without one, documents are ordered by id.
func ApplyQuery(snaps []Snapshot, q Query) []Snapshot {
	type keyed struct {
		snap Snapshot
		key  orderKey
	}

	items := make([]keyed, 0, len(snaps))
	for _, s := range snaps {
		if !s.Exists || Collection(s.Path) != q.Collection {
			continue
		}
		if q.OrderBy == "" {
			items = append(items, keyed{snap: s, key: orderKey{kind: keyString, str: s.ID}})
			continue
		}
		k, ok := fieldKey(s.Data, q.OrderBy)
		if !ok {
			continue
		}
		items = append(items, keyed{snap: s, key: k})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.key.less(b.key) {
			return !q.Descending
		}
		if b.key.less(a.key) {
			return q.Descending
		}
		return strings.Compare(a.snap.Path, b.snap.Path) < 0
	})

	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}

	out := make([]Snapshot, len(items))
	for i, it := range items {
		out[i] = it.snap
	}
	return out
}
