package models

import "time"

// ResultStatus marks whether a grade counts toward reports.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultPending   ResultStatus = "pending"
)

// Result is one student's grade for one assessment.
type Result struct {
	ID           string       `db:"id" json:"id"`
	AssessmentID string       `db:"assessment_id" json:"assessment_id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	Score        float64      `db:"score" json:"score"`
	Feedback     *string      `db:"feedback" json:"feedback,omitempty"`
	Status       ResultStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// AttemptStatus of a student's assessment session.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// AssessmentAttempt is a student's session for taking an assessment.
type AssessmentAttempt struct {
	ID           string        `db:"id" json:"id"`
	AssessmentID string        `db:"assessment_id" json:"assessment_id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	Status       AttemptStatus `db:"status" json:"status"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// GradingRow is one roster line on the grading page.
type GradingRow struct {
	StudentID   string        `db:"student_id" json:"student_id"`
	StudentName string        `db:"student_name" json:"student_name"`
	NIS         string        `db:"nis" json:"nis"`
	ClassName   string        `db:"class_name" json:"class_name"`
	Score       *float64      `db:"score" json:"score,omitempty"`
	Feedback    *string       `db:"feedback" json:"feedback,omitempty"`
	Status      *ResultStatus `db:"status" json:"status,omitempty"`
	Attempted   bool          `db:"attempted" json:"attempted"`
}

// GradingSheet is the grading page state.
type GradingSheet struct {
	Assessment    AssessmentDetail `json:"assessment"`
	TotalMaxScore float64          `json:"total_max_score"`
	Rows          []GradingRow     `json:"rows"`
}
