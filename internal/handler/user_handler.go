package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Me refreshes the caller's directory entry from the token and returns it.
func (h *UserHandler) Me(c *gin.Context) {
	id, err := services.Actor(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	u, err := h.service.SyncProfile(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.Directory(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.UsersResponse{Users: users})
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

// Suggest ranks channels and users for the search box and @-mentions.
func (h *UserHandler) Suggest(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultSuggestLimit)
	if err != nil {
		fail(c, err)
		return
	}
	list, err := h.service.Suggest(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.SuggestionsResponse{Suggestions: list})
}

// Presence takes a comma separated ids query.
func (h *UserHandler) Presence(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	statuses, err := h.service.Presence(c.Request.Context(), ids)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.PresenceResponse{Presence: statuses})
}

func (h *UserHandler) SetStatus(c *gin.Context) {
	var req httpdto.SetStatusRequest
	if !bind(c, &req) {
		return
	}
	if err := h.service.SetStatus(c.Request.Context(), req.Status); err != nil {
		fail(c, err)
		return
	}
	ok[any](c, nil)
}

func (h *UserHandler) Heartbeat(c *gin.Context) {
	if err := h.service.Heartbeat(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok[any](c, nil)
}
