package httpdto

type PresignAvatarRequest struct {
	ContentType string `json:"contentType" binding:"required"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required"`
}

// UpdateAvatarRequest points the profile at an object uploaded through a
// presigned URL.
type UpdateAvatarRequest struct {
	Key string `json:"key" binding:"required"`
}

type AvatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}
