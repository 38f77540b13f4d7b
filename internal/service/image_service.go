package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/storage"
)

const sniffLen = 3072

type imageRepository interface {
	Create(ctx context.Context, image *models.AssessmentImage) error
	FindByID(ctx context.Context, id string) (*models.AssessmentImage, error)
}

type mediaStore interface {
	SaveStream(relPath string, r io.Reader, maxBytes int64) (int64, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type urlSigner interface {
	Sign(resourceID, relPath string) (string, time.Time, error)
	Verify(token string) (*storage.SignedResource, error)
}

// ImageService stores question images and hands out signed media URLs.
type ImageService struct {
	repo     imageRepository
	store    mediaStore
	signer   urlSigner
	activity activityRecorder
	maxBytes int64
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewImageService constructs an ImageService. allowedMIMEs defaults to common
// web image types.
func NewImageService(repo imageRepository, store mediaStore, signer urlSigner, activity activityRecorder, maxBytes int64, allowedMIMEs []string, logger *zap.Logger) *ImageService {
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	if len(allowedMIMEs) == 0 {
		allowedMIMEs = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	if activity == nil {
		activity = noopActivity{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageService{repo: repo, store: store, signer: signer, activity: activity, maxBytes: maxBytes, allowed: allowed, logger: logger}
}

// Upload detects the content type from the first bytes of r, stores the file and
// records it for the teacher.
func (s *ImageService) Upload(ctx context.Context, scope models.TeacherScope, originalName string, r io.Reader) (*models.UploadedImage, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Internal(err, "failed to read upload")
	}
	header = header[:n]
	if n == 0 {
		return nil, invalid("Please choose an image to upload.")
	}
	detected := mimetype.Detect(header)
	mimeType := strings.ToLower(strings.SplitN(detected.String(), ";", 2)[0])
	if _, ok := s.allowed[mimeType]; !ok {
		return nil, invalid("Only image files can be uploaded.")
	}

	id := uuid.NewString()
	relPath := path.Join(scope.TeacherID, id+detected.Extension())
	size, err := s.store.SaveStream(relPath, io.MultiReader(bytes.NewReader(header), r), s.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, invalid("Image is too large.")
		}
		return nil, appErrors.Internal(err, "failed to store image")
	}

	image := &models.AssessmentImage{
		ID:           id,
		TeacherID:    scope.TeacherID,
		FilePath:     relPath,
		OriginalName: path.Base(strings.ReplaceAll(originalName, "\\", "/")),
		MimeType:     mimeType,
		SizeBytes:    size,
	}
	if err := s.repo.Create(ctx, image); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("remove orphaned image", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to record image")
	}
	s.activity.Record(ctx, scope, models.ActivityImageUpload, "image", image.ID, map[string]interface{}{
		"mime_type":  mimeType,
		"size_bytes": size,
	})
	return s.signed(image)
}

// URL signs a fresh media URL for an image id.
func (s *ImageService) URL(ctx context.Context, imageID string) (*models.UploadedImage, error) {
	image, err := s.repo.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Image not found.")
		}
		return nil, appErrors.Internal(err, "failed to load image")
	}
	return s.signed(image)
}

func (s *ImageService) signed(image *models.AssessmentImage) (*models.UploadedImage, error) {
	token, expiresAt, err := s.signer.Sign(image.ID, image.FilePath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign media url")
	}
	return &models.UploadedImage{ID: image.ID, URL: "/media/" + token, ExpiresAt: expiresAt}, nil
}

// Open resolves a media token to the stored file and its content type. The
// caller closes the file.
func (s *ImageService) Open(ctx context.Context, token string) (*os.File, *models.AssessmentImage, error) {
	resource, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Image not found.")
	}
	image, err := s.repo.FindByID(ctx, resource.ResourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Image not found.")
		}
		return nil, nil, appErrors.Internal(err, "failed to load image")
	}
	if image.FilePath != resource.Path {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Image not found.")
	}
	file, err := s.store.Open(image.FilePath)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Image not found.")
	}
	return file, image, nil
}
