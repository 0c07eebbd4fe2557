package httpdto

import (
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/presence"
	"huddle-chat/internal/search"
)

type UsersResponse struct {
	Users []*user.User `json:"users"`
}

type SuggestionsResponse struct {
	Suggestions []search.Suggestion `json:"suggestions"`
}

// SetStatusRequest carries one of active, away or offline.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type PresenceResponse struct {
	Presence map[string]*presence.Status `json:"presence"`
}
