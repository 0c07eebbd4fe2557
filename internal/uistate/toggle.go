// Package uistate holds the small state machines behind popovers, menus,
// modals and dropdowns. Nothing here touches the store.
package uistate

// Toggle is an open/closed affordance. A Toggle that belongs to a Group
// closes the other members when it opens.
type Toggle struct {
	name  string
	open  bool
	group *Group
}

func NewToggle(name string) *Toggle {
	return &Toggle{name: name}
}

func (t *Toggle) Name() string { return t.name }

func (t *Toggle) IsOpen() bool { return t.open }

func (t *Toggle) Open() {
	if t.group != nil {
		t.group.closeOthers(t)
	}
	t.open = true
}

func (t *Toggle) Close() {
	t.open = false
}

func (t *Toggle) Toggle() {
	if t.open {
		t.Close()
		return
	}
	t.Open()
}

// Group keeps at most one of its toggles open.
type Group struct {
	members []*Toggle
}

// NewGroup puts the toggles in one group. A toggle can only be in one group;
// the last one wins.
func NewGroup(members ...*Toggle) *Group {
	g := &Group{members: members}
	for _, m := range members {
		m.group = g
	}
	return g
}

func (g *Group) closeOthers(keep *Toggle) {
	for _, m := range g.members {
		if m != keep {
			m.Close()
		}
	}
}

// Active returns the open member, or nil.
func (g *Group) Active() *Toggle {
	for _, m := range g.members {
		if m.open {
			return m
		}
	}
	return nil
}

func (g *Group) CloseAll() {
	for _, m := range g.members {
		m.Close()
	}
}
