package user

import (
	"time"

	"huddle-chat/internal/domain"
)

// User is a directory entry. Online, Status and LastSeen are mirrored from
// the presence store.
type User struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Email       string            `json:"email,omitempty"`
	Status      domain.UserStatus `json:"status,omitempty"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	Online      bool              `json:"online"`
	LastSeen    *time.Time        `json:"lastSeen,omitempty"`
	Role        domain.UserRole   `json:"role,omitempty"`
}

// Label is the name shown for the user, falling back to the email address.
func (u *User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
