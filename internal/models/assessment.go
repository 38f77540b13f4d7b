package models

import "time"

// AssessmentStatus enumerates the lifecycle states of an assessment.
type AssessmentStatus string

const (
	AssessmentPending   AssessmentStatus = "pending"
	AssessmentCompleted AssessmentStatus = "completed"
	AssessmentArchived  AssessmentStatus = "archived"
)

// Valid reports whether s is a known status.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentPending, AssessmentCompleted, AssessmentArchived:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
// pending -> completed -> archived; nothing leaves archived.
func (s AssessmentStatus) CanTransition(next AssessmentStatus) bool {
	switch {
	case s == AssessmentPending && next == AssessmentCompleted:
		return true
	case s == AssessmentCompleted && next == AssessmentArchived:
		return true
	}
	return false
}

// Assessment is one gradable event administered to one or more class/subject pairs.
type Assessment struct {
	ID                  string           `db:"id" json:"id"`
	Title               string           `db:"title" json:"title"`
	Description         *string          `db:"description" json:"description,omitempty"`
	AssessmentDate      time.Time        `db:"assessment_date" json:"assessment_date"`
	StartTime           *string          `db:"start_time" json:"start_time,omitempty"`
	EndTime             *string          `db:"end_time" json:"end_time,omitempty"`
	DurationMinutes     *int             `db:"duration_minutes" json:"duration_minutes,omitempty"`
	SemesterID          string           `db:"semester_id" json:"semester_id"`
	AssessmentTypeID    string           `db:"assessment_type_id" json:"assessment_type_id"`
	Status              AssessmentStatus `db:"status" json:"status"`
	AllowLateSubmission bool             `db:"allow_late_submission" json:"allow_late_submission"`
	LateSubmissionDays  int              `db:"late_submission_days" json:"late_submission_days"`
	ShuffleQuestions    bool             `db:"shuffle_questions" json:"shuffle_questions"`
	ShuffleOptions      bool             `db:"shuffle_options" json:"shuffle_options"`
	UseQuestionLimit    bool             `db:"use_question_limit" json:"use_question_limit"`
	QuestionsToAnswer   *int             `db:"questions_to_answer" json:"questions_to_answer,omitempty"`
	ResetEditMode       bool             `db:"reset_edit_mode" json:"reset_edit_mode"`
	CreatedBy           string           `db:"created_by" json:"created_by"`
	Version             int              `db:"version" json:"version"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// Editable reports whether the normal edit paths may change the assessment.
func (a Assessment) Editable() bool {
	return a.Status == AssessmentPending || a.ResetEditMode
}

// AssessmentType is a lookup row such as "Quiz" or "Midterm".
type AssessmentType struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// AssessmentDetail carries everything the edit page needs.
type AssessmentDetail struct {
	Assessment
	AssessmentTypeName string             `db:"assessment_type_name" json:"assessment_type_name"`
	SemesterName       string             `db:"semester_name" json:"semester_name"`
	Pairs              []ClassSubjectPair `json:"pairs"`
	HasAttempts        bool               `json:"has_attempts"`
}

// AssessmentSummary is one list row: an assessment as seen from one of its
// class/subject pairs.
type AssessmentSummary struct {
	ID                 string           `db:"id" json:"id"`
	Title              string           `db:"title" json:"title"`
	AssessmentDate     time.Time        `db:"assessment_date" json:"assessment_date"`
	StartTime          *string          `db:"start_time" json:"start_time,omitempty"`
	EndTime            *string          `db:"end_time" json:"end_time,omitempty"`
	Status             AssessmentStatus `db:"status" json:"status"`
	AssessmentTypeName string           `db:"assessment_type_name" json:"assessment_type_name"`
	UseQuestionLimit   bool             `db:"use_question_limit" json:"use_question_limit"`
	QuestionsToAnswer  *int             `db:"questions_to_answer" json:"questions_to_answer,omitempty"`
	ClassID            string           `db:"class_id" json:"class_id"`
	ClassName          string           `db:"class_name" json:"class_name"`
	SubjectID          string           `db:"subject_id" json:"subject_id"`
	SubjectName        string           `db:"subject_name" json:"subject_name"`
	QuestionCount      int              `db:"question_count" json:"question_count"`
	SubmissionCount    int              `db:"submission_count" json:"submission_count"`
	StudentCount       int              `db:"student_count" json:"student_count"`
}

// AssessmentGroup collects list rows sharing a class/subject pair.
type AssessmentGroup struct {
	Pair        ClassSubjectPair    `json:"pair"`
	Assessments []AssessmentSummary `json:"assessments"`
}

// AssessmentListing is the assessment list page state.
type AssessmentListing struct {
	Groups  []AssessmentGroup `json:"groups"`
	Expired int64             `json:"expired"`
}
