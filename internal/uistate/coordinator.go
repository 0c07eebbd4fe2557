package uistate

var (
	EmojiPickerSize = Size{Width: 352, Height: 435}
	EditMenuSize    = Size{Width: 180, Height: 120}
)

// Coordinator composes the affordances of one chat screen. The emoji picker,
// the mention list and the message edit menu share one Group, so opening any
// of them closes the other two. The members modal, the suggestion dropdown
// and edit-in-place are independent.
type Coordinator struct {
	EmojiPicker  *Toggle
	MentionList  *Toggle
	EditMenu     *Toggle
	MembersModal *Toggle
	Suggestions  SuggestionDropdown
	Edit         EditSession

	popovers *Group

	anchor   string
	position Position
}

func NewCoordinator() *Coordinator {
	c := &Coordinator{
		EmojiPicker:  NewToggle("emoji_picker"),
		MentionList:  NewToggle("mention_list"),
		EditMenu:     NewToggle("edit_menu"),
		MembersModal: NewToggle("members_modal"),
	}
	c.popovers = NewGroup(c.EmojiPicker, c.MentionList, c.EditMenu)
	c.Suggestions.Close()
	return c
}

// OpenEmojiPicker opens the picker for reacting to messageID. An empty id
// means the picker inserts into the composer.
func (c *Coordinator) OpenEmojiPicker(messageID string, trigger Rect, viewport Size) Position {
	return c.openPopover(c.EmojiPicker, messageID, EmojiPickerSize, trigger, viewport)
}

func (c *Coordinator) OpenEditMenu(messageID string, trigger Rect, viewport Size) Position {
	return c.openPopover(c.EditMenu, messageID, EditMenuSize, trigger, viewport)
}

func (c *Coordinator) openPopover(t *Toggle, anchor string, size Size, trigger Rect, viewport Size) Position {
	t.Open()
	c.anchor = anchor
	c.position = Place(trigger, size, viewport, DefaultMargin)
	return c.position
}

// ShowMentions opens the mention list with n candidates. Zero candidates
// close it.
func (c *Coordinator) ShowMentions(n int) {
	if n <= 0 {
		c.MentionList.Close()
		return
	}
	c.MentionList.Open()
	c.anchor = ""
}

// Anchor returns the message the open popover acts on.
func (c *Coordinator) Anchor() string {
	if c.popovers.Active() == nil {
		return ""
	}
	return c.anchor
}

// BeginEdit switches the edit menu over to edit-in-place.
func (c *Coordinator) BeginEdit(messageID, text string) {
	c.popovers.CloseAll()
	c.Edit.Begin(messageID, text)
}

// Escape closes the innermost open affordance and reports whether anything
// was closed.
func (c *Coordinator) Escape() bool {
	switch {
	case c.popovers.Active() != nil:
		c.popovers.CloseAll()
	case c.Suggestions.IsOpen():
		c.Suggestions.Close()
	case c.MembersModal.IsOpen():
		c.MembersModal.Close()
	case c.Edit.State() == EditEditing:
		c.Edit.Cancel()
	default:
		return false
	}
	return true
}

// Reset closes everything, as when switching conversations.
func (c *Coordinator) Reset() {
	c.popovers.CloseAll()
	c.MembersModal.Close()
	c.Suggestions.Close()
	c.Edit.Cancel()
	c.anchor = ""
}

// State is a serializable snapshot of the coordinator.
type State struct {
	Popover      string    `json:"popover,omitempty"`
	Anchor       string    `json:"anchor,omitempty"`
	Position     *Position `json:"position,omitempty"`
	MembersModal bool      `json:"membersModal"`
	Suggestion   int       `json:"suggestion"`
	Editing      string    `json:"editing,omitempty"`
}

func (c *Coordinator) State() State {
	s := State{
		MembersModal: c.MembersModal.IsOpen(),
		Suggestion:   c.Suggestions.Selected(),
		Editing:      c.Edit.MessageID(),
	}
	if active := c.popovers.Active(); active != nil {
		s.Popover = active.Name()
		s.Anchor = c.anchor
		if active != c.MentionList {
			pos := c.position
			s.Position = &pos
		}
	}
	return s
}
