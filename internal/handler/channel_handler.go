package handler

import (
	"github.com/gin-gonic/gin"

	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
)

type ChannelHandler struct {
	service *services.ChannelService
}

func NewChannelHandler(service *services.ChannelService) *ChannelHandler {
	return &ChannelHandler{service: service}
}

func (h *ChannelHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.ChannelsResponse{Channels: list})
}

func (h *ChannelHandler) Create(c *gin.Context) {
	var req httpdto.CreateChannelRequest
	if !bind(c, &req) {
		return
	}
	ch, err := h.service.Create(c.Request.Context(), req.Name, req.Topic)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, ch)
}

func (h *ChannelHandler) Get(c *gin.Context) {
	ch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ch)
}

func (h *ChannelHandler) Join(c *gin.Context) {
	changed, err := h.service.Join(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.MembershipResponse{ChannelID: c.Param("id"), Changed: changed})
}

func (h *ChannelHandler) Leave(c *gin.Context) {
	changed, err := h.service.Leave(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.MembershipResponse{ChannelID: c.Param("id"), Changed: changed})
}

func (h *ChannelHandler) SetTopic(c *gin.Context) {
	var req httpdto.SetTopicRequest
	if !bind(c, &req) {
		return
	}
	if err := h.service.SetTopic(c.Request.Context(), c.Param("id"), req.Topic); err != nil {
		fail(c, err)
		return
	}
	ok[any](c, nil)
}

func (h *ChannelHandler) Members(c *gin.Context) {
	members, err := h.service.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.MembersResponse{Members: members})
}
