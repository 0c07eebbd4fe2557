package conversation

import (
	"strings"
	"time"
)

// Separator joins the two participant ids of a DM conversation id.
const Separator = "_"

// Conversation is a 1:1 direct message thread, created lazily on the first
// message between two users.
type Conversation struct {
	ID            string          `json:"id"`
	Participants  map[string]bool `json:"participants"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
}

// ID returns the conversation id of two users. It does not depend on
// argument order.
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}

// Peer returns the participant of conversation id that is not self.
func Peer(id, self string) (string, bool) {
	if rest, ok := strings.CutPrefix(id, self+Separator); ok && rest != "" {
		return rest, true
	}
	if rest, ok := strings.CutSuffix(id, Separator+self); ok && rest != "" {
		return rest, true
	}
	return "", false
}

func New(a, b string, now time.Time) *Conversation {
	return &Conversation{
		ID:           ID(a, b),
		Participants: map[string]bool{a: true, b: true},
		CreatedAt:    &now,
	}
}

func (c *Conversation) Has(userID string) bool {
	return c.Participants[userID]
}
