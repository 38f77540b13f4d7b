package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// LookupRepository reads reference data used by forms and reports.
type LookupRepository struct {
	db *sqlx.DB
}

// NewLookupRepository constructs the repository.
func NewLookupRepository(db *sqlx.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// ListAssessmentTypes returns the selectable assessment types.
func (r *LookupRepository) ListAssessmentTypes(ctx context.Context) ([]models.AssessmentType, error) {
	const query = `SELECT id, name, description FROM assessment_types ORDER BY name ASC`
	var types []models.AssessmentType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list assessment types: %w", err)
	}
	return types, nil
}

// AssessmentTypeExists reports whether id names an assessment type.
func (r *LookupRepository) AssessmentTypeExists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM assessment_types WHERE id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assessment type: %w", err)
	}
	return true, nil
}
