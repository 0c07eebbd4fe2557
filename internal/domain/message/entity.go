package message

import "time"

// Message is a channel or DM message. Replies share the type and carry the
// root message id in ParentID; replies never have replies of their own.
type Message struct {
	ID           string     `json:"id"`
	AuthorID     string     `json:"authorId"`
	AuthorName   string     `json:"authorName"`
	AuthorAvatar string     `json:"authorAvatar,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	Text         string     `json:"text"`
	ReplyCount   int        `json:"replyCount"`
	LastReplyAt  *time.Time `json:"lastReplyAt,omitempty"`
	ParentID     string     `json:"parentId,omitempty"`
	Mentions     []string   `json:"mentions,omitempty"`

	// Reactions counts reactors per emoji; Reactors holds who they are.
	Reactions map[string]int             `json:"reactions,omitempty"`
	Reactors  map[string]map[string]bool `json:"reactors,omitempty"`
}

func (m *Message) IsReply() bool {
	return m.ParentID != ""
}

func (m *Message) Edited() bool {
	return m.EditedAt != nil
}

// Timestamp returns the creation time, or the zero time while unresolved.
func (m *Message) Timestamp() time.Time {
	if m.CreatedAt == nil {
		return time.Time{}
	}
	return *m.CreatedAt
}
