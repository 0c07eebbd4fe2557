package httpdto

import "huddle-chat/internal/domain/conversation"

type ConversationsResponse struct {
	Conversations []*conversation.Conversation `json:"conversations"`
}
