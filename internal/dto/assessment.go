package dto

import (
	"strings"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

// Actions posted to the assessment list page.
const (
	ActionUpdateStatus    = "update_status"
	ActionDeleteFromClass = "delete_from_class"
	ActionDelete          = "delete"
	ActionCreate          = "create"
	ActionEdit            = "edit"
	ActionImport          = "import"
)

// AssessmentForm is the create/edit assessment form. Checkboxes post "1".
type AssessmentForm struct {
	ID                  string   `form:"id"`
	Version             int      `form:"version"`
	Title               string   `form:"title" validate:"required,max=255"`
	Description         string   `form:"description" validate:"max=5000"`
	AssessmentDate      string   `form:"assessment_date" validate:"required,datetime=2006-01-02"`
	StartTime           string   `form:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime             string   `form:"end_time" validate:"omitempty,datetime=15:04"`
	DurationMinutes     int      `form:"duration" validate:"min=0,max=1440"`
	SemesterID          string   `form:"semester_id" validate:"required"`
	AssessmentTypeID    string   `form:"assessment_type_id"`
	ClassSubjects       []string `form:"class_subjects[]"`
	AllowLateSubmission bool     `form:"allow_late_submission"`
	LateSubmissionDays  int      `form:"late_submission_days" validate:"min=0,max=30"`
	ShuffleQuestions    bool     `form:"shuffle_questions"`
	ShuffleOptions      bool     `form:"shuffle_options"`
	UseQuestionLimit    bool     `form:"use_question_limit"`
	QuestionsToAnswer   int      `form:"questions_to_answer" validate:"min=0"`
}

// Pairs decodes the "classID:subjectID" checkbox values, skipping malformed
// entries and duplicates.
func (f AssessmentForm) Pairs() []models.ClassSubjectPair {
	seen := make(map[string]struct{}, len(f.ClassSubjects))
	pairs := make([]models.ClassSubjectPair, 0, len(f.ClassSubjects))
	for _, raw := range f.ClassSubjects {
		classID, subjectID, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok || classID == "" || subjectID == "" {
			continue
		}
		p := models.ClassSubjectPair{ClassID: classID, SubjectID: subjectID}
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		pairs = append(pairs, p)
	}
	return pairs
}

// StatusForm changes an assessment's status from the list page.
type StatusForm struct {
	AssessmentID string `form:"assessment_id" validate:"required"`
	Status       string `form:"status" validate:"required"`
}

// DeleteFromClassForm removes one class/subject association.
type DeleteFromClassForm struct {
	AssessmentID string `form:"assessment_id" validate:"required"`
	ClassID      string `form:"class_id" validate:"required"`
	SubjectID    string `form:"subject_id" validate:"required"`
}

// DeleteAssessmentForm removes an assessment from every class.
type DeleteAssessmentForm struct {
	AssessmentID string `form:"assessment_id" validate:"required"`
}

// AssessmentFormOptions feeds the selects and checkboxes of the assessment form.
type AssessmentFormOptions struct {
	Semesters       []models.Semester         `json:"semesters"`
	AssessmentTypes []models.AssessmentType   `json:"assessment_types"`
	Pairs           []models.ClassSubjectPair `json:"pairs"`
}
