package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/database"
)

// ReportRepository reads the raw rows behind result reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// PairData loads every assessment of a class/subject in semester, the class
// roster and the completed results linking them.
func (r *ReportRepository) PairData(ctx context.Context, semesterID, classID, subjectID string) (*models.ReportData, error) {
	const assessmentsQuery = `
SELECT a.id, a.title, at.name AS type_name, a.assessment_date,
       COALESCE((SELECT SUM(q.max_score) FROM questions q WHERE q.assessment_id = a.id), 0) AS total_max_score
FROM assessments a
JOIN assessment_classes ac ON ac.assessment_id = a.id
JOIN assessment_types at ON at.id = a.assessment_type_id
WHERE ac.class_id = $1 AND ac.subject_id = $2 AND a.semester_id = $3
ORDER BY a.assessment_date ASC, a.title ASC`
	data := &models.ReportData{}
	if err := r.db.SelectContext(ctx, &data.Assessments, assessmentsQuery, classID, subjectID, semesterID); err != nil {
		return nil, fmt.Errorf("list report assessments: %w", err)
	}

	const studentsQuery = `SELECT id, full_name, nis FROM students WHERE class_id = $1 AND active = TRUE ORDER BY full_name ASC`
	if err := r.db.SelectContext(ctx, &data.Students, studentsQuery, classID); err != nil {
		return nil, fmt.Errorf("list report students: %w", err)
	}

	if len(data.Assessments) == 0 || len(data.Students) == 0 {
		return data, nil
	}

	args := make([]interface{}, 0, len(data.Assessments)+1)
	args = append(args, classID)
	for _, a := range data.Assessments {
		args = append(args, a.ID)
	}
	resultsQuery := fmt.Sprintf(`
SELECT r.assessment_id, r.student_id, r.score, r.feedback
FROM results r
JOIN students st ON st.id = r.student_id
WHERE st.class_id = $1 AND r.status = 'completed' AND r.assessment_id IN (%s)`, database.InClause(2, len(data.Assessments)))
	if err := r.db.SelectContext(ctx, &data.Results, resultsQuery, args...); err != nil {
		return nil, fmt.Errorf("list report results: %w", err)
	}
	return data, nil
}
