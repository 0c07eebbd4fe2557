package httpdto

import (
	"huddle-chat/internal/domain/message"
	"huddle-chat/internal/repository"
)

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ReactionResponse reports the state of one emoji after a toggle. Skipped is
// set when the message no longer exists.
type ReactionResponse struct {
	Emoji   string `json:"emoji"`
	Added   bool   `json:"added"`
	Count   int    `json:"count"`
	Skipped bool   `json:"skipped,omitempty"`
}

func NewReactionResponse(emoji string, r repository.ToggleResult) ReactionResponse {
	return ReactionResponse{Emoji: emoji, Added: r.Added, Count: r.Count, Skipped: r.Skipped}
}

type MessageResponse struct {
	Message *message.Message `json:"message"`
}
