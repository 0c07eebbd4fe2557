package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	huddle_errors "huddle-chat/pkg/errors"
)

type UploadHandler struct {
	service *services.UserService
}

func NewUploadHandler(service *services.UserService) *UploadHandler {
	return &UploadHandler{service: service}
}

// PresignAvatar returns a URL the client PUTs the image to directly.
func (h *UploadHandler) PresignAvatar(c *gin.Context) {
	var req httpdto.PresignAvatarRequest
	if !bind(c, &req) {
		return
	}
	upload, err := h.service.PresignAvatar(c.Request.Context(), req.ContentType, req.SizeBytes)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, upload)
}

func (h *UploadHandler) UpdateAvatar(c *gin.Context) {
	var req httpdto.UpdateAvatarRequest
	if !bind(c, &req) {
		return
	}
	url, err := h.service.UpdateAvatar(c.Request.Context(), req.Key)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.AvatarResponse{AvatarURL: url})
}

// UploadAvatar accepts a multipart "file" field and stores it through the
// server.
func (h *UploadHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, fmt.Errorf("file: %w", huddle_errors.ErrInvalidInput))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	url, err := h.service.UploadAvatar(c.Request.Context(), fh.Header.Get("Content-Type"), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, httpdto.AvatarResponse{AvatarURL: url})
}
