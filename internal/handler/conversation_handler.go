package handler

import (
	"github.com/gin-gonic/gin"

	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
)

type ConversationHandler struct {
	service *services.ChatService
}

func NewConversationHandler(service *services.ChatService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// List returns the caller's direct conversations, most recent first.
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.service.ListConversations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.ConversationsResponse{Conversations: convs})
}
