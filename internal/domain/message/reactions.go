package message

import "fmt"

// ToggleReaction flips userID's membership in the reactor set of emoji and
// keeps the per-emoji count in step. An emoji whose last reactor leaves is
// removed from both maps. It reports whether the reaction was added.
func (m *Message) ToggleReaction(emoji, userID string) (added bool) {
	set := m.Reactors[emoji]
	if set[userID] {
		delete(set, userID)
		left := reactorCount(set)
		if left == 0 {
			delete(m.Reactors, emoji)
			delete(m.Reactions, emoji)
		} else {
			n := m.Reactions[emoji] - 1
			if n < 1 {
				n = left
			}
			m.Reactions[emoji] = n
		}
		m.tidyReactions()
		return false
	}

	if m.Reactors == nil {
		m.Reactors = make(map[string]map[string]bool)
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]int)
	}
	if set == nil {
		set = make(map[string]bool)
		m.Reactors[emoji] = set
	}
	set[userID] = true
	m.Reactions[emoji]++
	return true
}

// HasReacted reports whether userID is in the reactor set of emoji.
func (m *Message) HasReacted(emoji, userID string) bool {
	return m.Reactors[emoji][userID]
}

// CheckReactions verifies that every count matches its reactor set and that
// no zero counts are stored.
func (m *Message) CheckReactions() error {
	for emoji, n := range m.Reactions {
		if n <= 0 {
			return fmt.Errorf("reaction %q has count %d", emoji, n)
		}
		if got := reactorCount(m.Reactors[emoji]); got != n {
			return fmt.Errorf("reaction %q counts %d but has %d reactors", emoji, n, got)
		}
	}
	for emoji, set := range m.Reactors {
		if _, ok := m.Reactions[emoji]; !ok && reactorCount(set) > 0 {
			return fmt.Errorf("reaction %q has reactors but no count", emoji)
		}
	}
	return nil
}

func reactorCount(set map[string]bool) int {
	n := 0
	for _, v := range set {
		if v {
			n++
		}
	}
	return n
}

func (m *Message) tidyReactions() {
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}
	if len(m.Reactors) == 0 {
		m.Reactors = nil
	}
}
