package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// ImageRepository persists uploaded question images.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository constructs the repository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create records an uploaded file.
func (r *ImageRepository) Create(ctx context.Context, image *models.AssessmentImage) error {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_images (id, teacher_id, file_path, original_name, mime_type, size_bytes, created_at)
        VALUES (:id, :teacher_id, :file_path, :original_name, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, image); err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

// FindByID returns an image by id.
func (r *ImageRepository) FindByID(ctx context.Context, id string) (*models.AssessmentImage, error) {
	const query = `SELECT id, teacher_id, file_path, original_name, mime_type, size_bytes, created_at FROM assessment_images WHERE id = $1`
	var image models.AssessmentImage
	if err := r.db.GetContext(ctx, &image, query, id); err != nil {
		if isMissingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find image: %w", err)
	}
	return &image, nil
}

// BelongsTo reports whether teacherID uploaded the image.
func (r *ImageRepository) BelongsTo(ctx context.Context, teacherID, imageID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_images WHERE id = $1 AND teacher_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, imageID, teacherID); err != nil {
		if isMissingRow(err) {
			return false, nil
		}
		return false, fmt.Errorf("check image owner: %w", err)
	}
	return ok, nil
}
