package handlers

import (
	"context"
	"mime/multipart"
	"net/http"

	"chat-sync/internal/api/middleware"
	"chat-sync/internal/models"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxMediaSize = 10 << 20

// MediaUploader stores an attachment and returns its URL.
type MediaUploader interface {
	UploadMedia(ctx context.Context, file *multipart.FileHeader, ownerID string) (string, error)
}

type MediaHandler struct {
	uploader MediaUploader
}

func NewMediaHandler(uploader MediaUploader) *MediaHandler {
	return &MediaHandler{uploader: uploader}
}

// UploadMedia godoc
// @Summary Upload a message attachment
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Attachment"
// @Success 201 {object} models.MediaUploadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse "Object storage not configured"
// @Router /media [post]
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	if h.uploader == nil {
		response.Abort(c, http.StatusServiceUnavailable, "media storage is not configured")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Abort(c, http.StatusBadRequest, "file is required")
		return
	}
	if file.Size > maxMediaSize {
		response.Abort(c, http.StatusBadRequest, "file is larger than 10MB")
		return
	}

	url, err := h.uploader.UploadMedia(c.Request.Context(), file, middleware.Viewer(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.MediaUploadResponse{URL: url})
}
