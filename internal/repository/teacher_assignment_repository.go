package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// TeacherAssignmentRepository answers ownership questions against the
// teacher_class_assignments fact table. Every check is scoped to one semester.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// ListPairs returns the class/subject pairs assigned to teacher in semester.
func (r *TeacherAssignmentRepository) ListPairs(ctx context.Context, teacherID, semesterID string) ([]models.ClassSubjectPair, error) {
	const query = `
SELECT tca.class_id, tca.subject_id, c.name AS class_name, s.name AS subject_name
FROM teacher_class_assignments tca
JOIN classes c ON c.id = tca.class_id
JOIN subjects s ON s.id = tca.subject_id
WHERE tca.teacher_id = $1 AND tca.semester_id = $2
ORDER BY c.name ASC, s.name ASC`
	var pairs []models.ClassSubjectPair
	if err := r.db.SelectContext(ctx, &pairs, query, teacherID, semesterID); err != nil {
		return nil, fmt.Errorf("list teacher pairs: %w", err)
	}
	return pairs, nil
}

// HasPair reports whether teacher is assigned to class/subject in semester.
func (r *TeacherAssignmentRepository) HasPair(ctx context.Context, teacherID, semesterID, classID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_class_assignments WHERE teacher_id = $1 AND semester_id = $2 AND class_id = $3 AND subject_id = $4 LIMIT 1`
	return r.exists(ctx, "check teacher pair", query, teacherID, semesterID, classID, subjectID)
}

// OwnsAssessment reports whether the assessment is attached to at least one pair
// the teacher is assigned to. pendingOnly additionally requires status pending.
func (r *TeacherAssignmentRepository) OwnsAssessment(ctx context.Context, teacherID, semesterID, assessmentID string, pendingOnly bool) (bool, error) {
	query := `
SELECT 1
FROM assessments a
JOIN assessment_classes ac ON ac.assessment_id = a.id
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
WHERE a.id = $1 AND tca.teacher_id = $2 AND tca.semester_id = $3`
	if pendingOnly {
		query += ` AND a.status = 'pending'`
	}
	query += ` LIMIT 1`
	return r.exists(ctx, "check assessment ownership", query, assessmentID, teacherID, semesterID)
}

// OwnsAssessmentPair is OwnsAssessment narrowed to one class/subject association.
func (r *TeacherAssignmentRepository) OwnsAssessmentPair(ctx context.Context, teacherID, semesterID, assessmentID, classID, subjectID string, pendingOnly bool) (bool, error) {
	query := `
SELECT 1
FROM assessments a
JOIN assessment_classes ac ON ac.assessment_id = a.id
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
WHERE a.id = $1 AND ac.class_id = $2 AND ac.subject_id = $3 AND tca.teacher_id = $4 AND tca.semester_id = $5`
	if pendingOnly {
		query += ` AND a.status = 'pending'`
	}
	query += ` LIMIT 1`
	return r.exists(ctx, "check assessment pair ownership", query, assessmentID, classID, subjectID, teacherID, semesterID)
}

// PendingQuestionAssessment returns the parent assessment of a question the teacher
// may still modify. sql.ErrNoRows means not found, not owned or no longer pending.
func (r *TeacherAssignmentRepository) PendingQuestionAssessment(ctx context.Context, teacherID, semesterID, questionID string) (string, error) {
	const query = `
SELECT a.id
FROM questions q
JOIN assessments a ON a.id = q.assessment_id
JOIN assessment_classes ac ON ac.assessment_id = a.id
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
WHERE q.id = $1 AND tca.teacher_id = $2 AND tca.semester_id = $3 AND a.status = 'pending'
LIMIT 1`
	var assessmentID string
	if err := r.db.GetContext(ctx, &assessmentID, query, questionID, teacherID, semesterID); err != nil {
		if isMissingRow(err) {
			return "", sql.ErrNoRows
		}
		return "", fmt.Errorf("check question ownership: %w", err)
	}
	return assessmentID, nil
}

// TeachesStudent reports whether the student sits in a class the assessment is
// assigned to and the teacher teaches that class/subject.
func (r *TeacherAssignmentRepository) TeachesStudent(ctx context.Context, teacherID, semesterID, assessmentID, studentID string) (bool, error) {
	const query = `
SELECT 1
FROM students st
JOIN assessment_classes ac ON ac.class_id = st.class_id
JOIN teacher_class_assignments tca ON tca.class_id = ac.class_id AND tca.subject_id = ac.subject_id
WHERE st.id = $1 AND ac.assessment_id = $2 AND tca.teacher_id = $3 AND tca.semester_id = $4
LIMIT 1`
	return r.exists(ctx, "check student scope", query, studentID, assessmentID, teacherID, semesterID)
}

func (r *TeacherAssignmentRepository) exists(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if isMissingRow(err) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
