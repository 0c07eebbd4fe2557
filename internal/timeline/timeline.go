// Package timeline groups a message list into calendar-day sections.
package timeline

import (
	"sort"
	"time"
)

const (
	KeyLayout   = "2006-01-02"
	LabelLayout = "Monday, January 2, 2006"
	TodayLabel  = "Today"
)

// Day is one calendar-day section of a timeline.
type Day[T any] struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Items []T    `json:"items"`
}

type timed[T any] struct {
	item T
	at   time.Time
}

// GroupByDay buckets items by the calendar date of their timestamp in loc.
// Items whose timestamp is nil or zero are left out. Days come out oldest
// first and items inside a day are ordered by timestamp, keeping arrival
// order for equal timestamps. The day containing now is labeled Today.
func GroupByDay[T any](items []T, timestamp func(T) *time.Time, now time.Time, loc *time.Location) []Day[T] {
	if loc == nil {
		loc = time.Local
	}

	buckets := make(map[string][]timed[T])
	for _, it := range items {
		ts := timestamp(it)
		if ts == nil || ts.IsZero() {
			continue
		}
		at := ts.In(loc)
		key := at.Format(KeyLayout)
		buckets[key] = append(buckets[key], timed[T]{item: it, at: at})
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	today := now.In(loc).Format(KeyLayout)
	days := make([]Day[T], 0, len(keys))
	for _, k := range keys {
		bucket := buckets[k]
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].at.Before(bucket[j].at)
		})

		day := Day[T]{Key: k, Items: make([]T, len(bucket))}
		for i, b := range bucket {
			day.Items[i] = b.item
		}
		if k == today {
			day.Label = TodayLabel
		} else {
			day.Label = bucket[0].at.Format(LabelLayout)
		}
		days = append(days, day)
	}
	return days
}

// Flatten concatenates the days back into one list.
func Flatten[T any](days []Day[T]) []T {
	n := 0
	for _, d := range days {
		n += len(d.Items)
	}
	out := make([]T, 0, n)
	for _, d := range days {
		out = append(out, d.Items...)
	}
	return out
}
