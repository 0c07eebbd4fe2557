package handler

import (
	"github.com/gin-gonic/gin"

	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
)

// TargetResolver maps a request to the conversation it addresses.
type TargetResolver func(c *gin.Context) (domain.Target, error)

// ChannelTarget reads the channel id from the :id path segment.
func ChannelTarget(c *gin.Context) (domain.Target, error) {
	return domain.ChannelTarget(c.Param("id")), nil
}

// DMTarget addresses the caller's direct conversation with the :peer user.
func DMTarget(c *gin.Context) (domain.Target, error) {
	id, err := services.Actor(c.Request.Context())
	if err != nil {
		return domain.Target{}, err
	}
	return domain.DMTarget(conversation.ID(id.UserID, c.Param("peer"))), nil
}

// MessageHandler serves the message routes of one conversation kind. The
// same routes hang under /channels/:id and /dms/:peer.
type MessageHandler struct {
	service *services.ChatService
	target  TargetResolver
}

func NewMessageHandler(service *services.ChatService, target TargetResolver) *MessageHandler {
	return &MessageHandler{service: service, target: target}
}

// ref reads :mid and the optional :rid of a reply route.
func ref(c *gin.Context) repository.MessageRef {
	if rid := c.Param("rid"); rid != "" {
		return repository.ReplyRef(c.Param("mid"), rid)
	}
	return repository.RootRef(c.Param("mid"))
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if !bind(c, &req) {
		return
	}
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	m, err := h.service.Send(c.Request.Context(), target, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, httpdto.MessageResponse{Message: m})
}

func (h *MessageHandler) Reply(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if !bind(c, &req) {
		return
	}
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	m, err := h.service.Reply(c.Request.Context(), target, c.Param("mid"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, httpdto.MessageResponse{Message: m})
}

func (h *MessageHandler) Get(c *gin.Context) {
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	m, err := h.service.GetMessage(c.Request.Context(), target, ref(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.MessageResponse{Message: m})
}

func (h *MessageHandler) Edit(c *gin.Context) {
	var req httpdto.EditMessageRequest
	if !bind(c, &req) {
		return
	}
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.service.Edit(c.Request.Context(), target, ref(c), req.Text); err != nil {
		fail(c, err)
		return
	}
	ok[any](c, nil)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), target, ref(c)); err != nil {
		fail(c, err)
		return
	}
	ok[any](c, nil)
}

func (h *MessageHandler) React(c *gin.Context) {
	var req httpdto.ReactionRequest
	if !bind(c, &req) {
		return
	}
	target, err := h.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.service.React(c.Request.Context(), target, ref(c), req.Emoji)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.NewReactionResponse(req.Emoji, res))
}
