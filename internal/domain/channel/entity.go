package channel

import (
	"time"

	"huddle-chat/internal/domain"
)

// Channel is a named multi-member conversation. The counters are
// denormalized and may drift from the true collection sizes.
type Channel struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Topic         string     `json:"topic,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	MemberCount   int        `json:"memberCount"`
	MessageCount  int        `json:"messageCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	LastReplyAt   *time.Time `json:"lastReplyAt,omitempty"`
}

// Member is a channel membership record, keyed by user id. Display name and
// avatar are a snapshot taken at join time.
type Member struct {
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	Role        domain.MemberRole `json:"role"`
	JoinedAt    *time.Time        `json:"joinedAt,omitempty"`
}

func (m Member) CanModerate() bool {
	return m.Role == domain.MemberRoleOwner || m.Role == domain.MemberRoleAdmin
}
