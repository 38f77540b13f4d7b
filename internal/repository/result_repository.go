package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// ResultRepository persists per-student assessment grades.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Upsert inserts the result or overwrites score, feedback and status of the
// existing (assessment, student) row.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now
	const query = `INSERT INTO results (id, assessment_id, student_id, score, feedback, status, created_at, updated_at)
        VALUES (:id, :assessment_id, :student_id, :score, :feedback, :status, :created_at, :updated_at)
        ON CONFLICT (assessment_id, student_id)
        DO UPDATE SET score = EXCLUDED.score, feedback = EXCLUDED.feedback, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// GradingRows lists every student of the assessment's classes that the teacher
// teaches in semester, with any existing result.
func (r *ResultRepository) GradingRows(ctx context.Context, teacherID, semesterID, assessmentID string) ([]models.GradingRow, error) {
	const query = `
SELECT DISTINCT st.id AS student_id, st.full_name AS student_name, st.nis, c.name AS class_name,
       r.score, r.feedback, r.status,
       EXISTS (SELECT 1 FROM assessment_attempts aa WHERE aa.assessment_id = ac.assessment_id AND aa.student_id = st.id) AS attempted
FROM assessment_classes ac
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
JOIN classes c ON c.id = ac.class_id
JOIN students st ON st.class_id = ac.class_id AND st.active = TRUE
LEFT JOIN results r ON r.assessment_id = ac.assessment_id AND r.student_id = st.id
WHERE ac.assessment_id = $1 AND tca.teacher_id = $2 AND tca.semester_id = $3
ORDER BY c.name ASC, st.full_name ASC`
	var rows []models.GradingRow
	if err := r.db.SelectContext(ctx, &rows, query, assessmentID, teacherID, semesterID); err != nil {
		return nil, fmt.Errorf("list grading rows: %w", err)
	}
	return rows, nil
}
