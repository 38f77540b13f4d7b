package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/response"
)

// multipart framing allowance on top of the image size limit.
const uploadOverhead = 64 * 1024

type imageService interface {
	Upload(ctx context.Context, scope models.TeacherScope, originalName string, r io.Reader) (*models.UploadedImage, error)
	Open(ctx context.Context, token string) (*os.File, *models.AssessmentImage, error)
}

// ImageHandler accepts question image uploads and serves signed media URLs.
type ImageHandler struct {
	service  imageService
	maxBytes int64
	logger   *zap.Logger
}

// NewImageHandler constructs the handler. maxBytes bounds the request body.
func NewImageHandler(svc imageService, maxBytes int64, logger *zap.Logger) *ImageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageHandler{service: svc, maxBytes: maxBytes, logger: logger}
}

// Upload stores the multipart `image` field and returns its id and URL.
func (h *ImageHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+uploadOverhead)
	}
	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Image is too large."))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Please choose an image to upload."))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to open upload"))
		return
	}
	defer file.Close()

	uploaded, err := h.service.Upload(c.Request.Context(), scope(c), header.Filename, file)
	if err != nil {
		if appErrors.FromError(err).Status >= http.StatusInternalServerError {
			h.logger.Error("image upload failed", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, uploaded)
}

// Serve streams the image behind a signed token.
func (h *ImageHandler) Serve(c *gin.Context) {
	file, image, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.Status(appErrors.FromError(err).Status)
		return
	}
	defer file.Close()

	c.Header("Content-Type", image.MimeType)
	c.Header("Cache-Control", "private, max-age=3600")
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, image.OriginalName, image.CreatedAt, file)
}
