package dto

// ResultForm records one student's grade.
type ResultForm struct {
	AssessmentID string   `form:"assessment_id" json:"assessment_id" validate:"required"`
	StudentID    string   `form:"student_id" json:"student_id" validate:"required"`
	Score        *float64 `form:"score" json:"score"`
	Feedback     string   `form:"feedback" json:"feedback" validate:"max=2000"`
	Status       string   `form:"status" json:"status"`
}

// ReportQuery selects a report and optional export format.
type ReportQuery struct {
	ClassID      string `form:"class"`
	SubjectID    string `form:"subject"`
	ReportType   string `form:"report_type"`
	StudentID    string `form:"student"`
	AssessmentID string `form:"assessment"`
	Export       string `form:"export"`
	SemesterID   string `form:"semester"`
}
