package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// SemesterRepository reads academic semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns every semester, newest first.
func (r *SemesterRepository) List(ctx context.Context) ([]models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, is_current, created_at FROM semesters ORDER BY start_date DESC`
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// FindByID returns a semester by id.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, is_current, created_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		if isMissingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find semester: %w", err)
	}
	return &semester, nil
}

// FindCurrent prefers the flagged semester, then the one containing today, then
// the latest.
func (r *SemesterRepository) FindCurrent(ctx context.Context, today time.Time) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, is_current, created_at FROM semesters
ORDER BY is_current DESC, (start_date <= $1 AND end_date >= $1) DESC, start_date DESC
LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, today.Format("2006-01-02")); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find current semester: %w", err)
	}
	return &semester, nil
}
