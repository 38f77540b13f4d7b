package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/database"
)

// AssessmentRepository persists assessments and their class/subject associations.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `a.id, a.title, a.description, a.assessment_date,
       to_char(a.start_time, 'HH24:MI') AS start_time, to_char(a.end_time, 'HH24:MI') AS end_time,
       a.duration_minutes, a.semester_id, a.assessment_type_id, a.status,
       a.allow_late_submission, a.late_submission_days, a.shuffle_questions, a.shuffle_options,
       a.use_question_limit, a.questions_to_answer, a.reset_edit_mode, a.created_by, a.version,
       a.created_at, a.updated_at`

// ExpireOverdue marks the teacher's pending assessments whose date and end time
// lie before now as completed. now is a wall-clock "YYYY-MM-DD HH:MM:SS" string
// in the school's timezone. Re-running it is a no-op.
func (r *AssessmentRepository) ExpireOverdue(ctx context.Context, teacherID, semesterID, now string) (int64, error) {
	const query = `
UPDATE assessments a SET status = 'completed', updated_at = NOW()
WHERE a.status = 'pending'
  AND (a.assessment_date + COALESCE(a.end_time, TIME '23:59:59')) < $3::timestamp
  AND EXISTS (
    SELECT 1 FROM assessment_classes ac
    JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
    WHERE ac.assessment_id = a.id AND tca.teacher_id = $1 AND tca.semester_id = $2
  )`
	res, err := r.db.ExecContext(ctx, query, teacherID, semesterID, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue assessments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired assessments: %w", err)
	}
	return affected, nil
}

// ListForTeacher returns one row per (assessment, class, subject) the teacher owns
// in semester, annotated with question, submission and roster counts.
func (r *AssessmentRepository) ListForTeacher(ctx context.Context, teacherID, semesterID string) ([]models.AssessmentSummary, error) {
	const query = `
SELECT a.id, a.title, a.assessment_date,
       to_char(a.start_time, 'HH24:MI') AS start_time, to_char(a.end_time, 'HH24:MI') AS end_time,
       a.status, at.name AS assessment_type_name, a.use_question_limit, a.questions_to_answer,
       ac.class_id, c.name AS class_name, ac.subject_id, s.name AS subject_name,
       (SELECT COUNT(*) FROM questions q WHERE q.assessment_id = a.id) AS question_count,
       (SELECT COUNT(*) FROM results r JOIN students st ON st.id = r.student_id
         WHERE r.assessment_id = a.id AND st.class_id = ac.class_id) AS submission_count,
       (SELECT COUNT(*) FROM students st WHERE st.class_id = ac.class_id AND st.active = TRUE) AS student_count
FROM assessments a
JOIN assessment_classes ac ON ac.assessment_id = a.id
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
JOIN assessment_types at ON at.id = a.assessment_type_id
JOIN classes c ON c.id = ac.class_id
JOIN subjects s ON s.id = ac.subject_id
WHERE tca.teacher_id = $1 AND tca.semester_id = $2 AND a.semester_id = $2
ORDER BY c.name ASC, s.name ASC, a.assessment_date DESC, a.title ASC`
	var rows []models.AssessmentSummary
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, semesterID); err != nil {
		return nil, fmt.Errorf("list teacher assessments: %w", err)
	}
	return rows, nil
}

// FindDetail loads an assessment with its type and semester names. Pairs are
// loaded separately with ListPairs.
func (r *AssessmentRepository) FindDetail(ctx context.Context, id string) (*models.AssessmentDetail, error) {
	query := `SELECT ` + assessmentColumns + `, at.name AS assessment_type_name, sm.name AS semester_name
FROM assessments a
JOIN assessment_types at ON at.id = a.assessment_type_id
JOIN semesters sm ON sm.id = a.semester_id
WHERE a.id = $1`
	var detail models.AssessmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if isMissingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	return &detail, nil
}

// ListPairs returns the class/subject associations of an assessment.
func (r *AssessmentRepository) ListPairs(ctx context.Context, assessmentID string) ([]models.ClassSubjectPair, error) {
	const query = `
SELECT ac.class_id, ac.subject_id, c.name AS class_name, s.name AS subject_name
FROM assessment_classes ac
JOIN classes c ON c.id = ac.class_id
JOIN subjects s ON s.id = ac.subject_id
WHERE ac.assessment_id = $1
ORDER BY c.name ASC, s.name ASC`
	var pairs []models.ClassSubjectPair
	if err := r.db.SelectContext(ctx, &pairs, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list assessment pairs: %w", err)
	}
	return pairs, nil
}

// HasAttempts reports whether any student has started the assessment.
func (r *AssessmentRepository) HasAttempts(ctx context.Context, assessmentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_attempts WHERE assessment_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, assessmentID); err != nil {
		return false, fmt.Errorf("check assessment attempts: %w", err)
	}
	return exists, nil
}

// Create inserts the assessment and one association per pair in one transaction.
func (r *AssessmentRepository) Create(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now
	assessment.Version = 1

	const insert = `INSERT INTO assessments (id, title, description, assessment_date, start_time, end_time, duration_minutes,
        semester_id, assessment_type_id, status, allow_late_submission, late_submission_days, shuffle_questions,
        shuffle_options, use_question_limit, questions_to_answer, reset_edit_mode, created_by, version, created_at, updated_at)
        VALUES (:id, :title, :description, :assessment_date, :start_time, :end_time, :duration_minutes,
        :semester_id, :assessment_type_id, :status, :allow_late_submission, :late_submission_days, :shuffle_questions,
        :shuffle_options, :use_question_limit, :questions_to_answer, :reset_edit_mode, :created_by, :version, :created_at, :updated_at)`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insert, assessment); err != nil {
			return fmt.Errorf("insert assessment: %w", err)
		}
		return insertPairs(ctx, tx, assessment.ID, pairs)
	})
}

// Update writes the editable fields when the stored version still equals
// assessment.Version. A non-nil pairs replaces the association set.
func (r *AssessmentRepository) Update(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error {
	assessment.UpdatedAt = time.Now().UTC()
	const update = `UPDATE assessments SET title = :title, description = :description, assessment_date = :assessment_date,
        start_time = :start_time, end_time = :end_time, duration_minutes = :duration_minutes, semester_id = :semester_id,
        assessment_type_id = :assessment_type_id, allow_late_submission = :allow_late_submission,
        late_submission_days = :late_submission_days, shuffle_questions = :shuffle_questions,
        shuffle_options = :shuffle_options, use_question_limit = :use_question_limit,
        questions_to_answer = :questions_to_answer, version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, update, assessment)
		if err != nil {
			return fmt.Errorf("update assessment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check updated assessment rows: %w", err)
		}
		if affected == 0 {
			return ErrStaleVersion
		}
		if pairs == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assessment_classes WHERE assessment_id = $1`, assessment.ID); err != nil {
			return fmt.Errorf("clear assessment pairs: %w", err)
		}
		return insertPairs(ctx, tx, assessment.ID, pairs)
	})
	if err != nil {
		return err
	}
	assessment.Version++
	return nil
}

// UpdateStatus sets the status field. It does not cascade.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssessmentStatus) error {
	const query = `UPDATE assessments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assessment status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFromClass removes one class/subject association together with that
// class's answers, results and attempts. When no association remains the
// assessment and its questions are deleted too; the return value reports that.
func (r *AssessmentRepository) DeleteFromClass(ctx context.Context, assessmentID, classID, subjectID string) (bool, error) {
	var deletedAll bool
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, stmt := range []struct{ op, query string }{
			{"delete class answers", `DELETE FROM student_answers WHERE assessment_id = $1 AND student_id IN (SELECT id FROM students WHERE class_id = $2)`},
			{"delete class results", `DELETE FROM results WHERE assessment_id = $1 AND student_id IN (SELECT id FROM students WHERE class_id = $2)`},
			{"delete class attempts", `DELETE FROM assessment_attempts WHERE assessment_id = $1 AND student_id IN (SELECT id FROM students WHERE class_id = $2)`},
		} {
			if _, err := tx.ExecContext(ctx, stmt.query, assessmentID, classID); err != nil {
				return fmt.Errorf("%s: %w", stmt.op, err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM assessment_classes WHERE assessment_id = $1 AND class_id = $2 AND subject_id = $3`, assessmentID, classID, subjectID)
		if err != nil {
			return fmt.Errorf("delete assessment pair: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check deleted pair rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}

		var remaining int
		if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM assessment_classes WHERE assessment_id = $1`, assessmentID); err != nil {
			return fmt.Errorf("count remaining pairs: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE assessment_id = $1`, assessmentID); err != nil {
			return fmt.Errorf("delete assessment questions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, assessmentID); err != nil {
			return fmt.Errorf("delete assessment: %w", err)
		}
		deletedAll = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deletedAll, nil
}

// Delete removes a pending assessment; dependent rows go with it through
// cascading foreign keys.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM assessments WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assessment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func insertPairs(ctx context.Context, tx *sqlx.Tx, assessmentID string, pairs []models.ClassSubjectPair) error {
	const query = `INSERT INTO assessment_classes (assessment_id, class_id, subject_id) VALUES ($1, $2, $3)`
	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx, query, assessmentID, p.ClassID, p.SubjectID); err != nil {
			return fmt.Errorf("insert assessment pair: %w", err)
		}
	}
	return nil
}
