package models

import "time"

// Report types selectable on the reports page.
const (
	ReportClass          = "class"
	ReportTypeAssessment = "assessment"
	ReportTypeStudent    = "student"
)

// ReportAssessment is one column of the class report.
type ReportAssessment struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	TypeName       string    `db:"type_name" json:"type_name"`
	AssessmentDate time.Time `db:"assessment_date" json:"assessment_date"`
	TotalMaxScore  float64   `db:"total_max_score" json:"total_max_score"`
}

// ReportResult is a raw completed result feeding the aggregation.
type ReportResult struct {
	AssessmentID string  `db:"assessment_id" json:"assessment_id"`
	StudentID    string  `db:"student_id" json:"student_id"`
	Score        float64 `db:"score" json:"score"`
	Feedback     *string `db:"feedback" json:"feedback,omitempty"`
}

// ReportStudent is a roster entry for reports.
type ReportStudent struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	NIS      string `db:"nis" json:"nis"`
}

// StudentReportRow is one student line in the class report. Scores aligns with
// ClassReport.Assessments; nil means no completed result.
type StudentReportRow struct {
	StudentID     string              `json:"student_id"`
	StudentName   string              `json:"student_name"`
	NIS           string              `json:"nis"`
	Scores        []*float64          `json:"scores"`
	TotalScore    float64             `json:"total_score"`
	TotalPossible float64             `json:"total_possible"`
	Average       *float64            `json:"average,omitempty"`
	TypeAverages  map[string]*float64 `json:"type_averages"`
}

// ClassStatistics summarises the class report.
type ClassStatistics struct {
	StudentCount int      `json:"student_count"`
	GradedCount  int      `json:"graded_count"`
	ClassAverage *float64 `json:"class_average,omitempty"`
	Highest      *float64 `json:"highest,omitempty"`
	Lowest       *float64 `json:"lowest,omitempty"`
}

// ClassReport is the student x assessment matrix for one class/subject/semester.
type ClassReport struct {
	Pair        ClassSubjectPair   `json:"pair"`
	SemesterID  string             `json:"semester_id"`
	Assessments []ReportAssessment `json:"assessments"`
	TypeNames   []string           `json:"type_names"`
	Rows        []StudentReportRow `json:"rows"`
	Statistics  ClassStatistics    `json:"statistics"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// AssessmentReportRow is one student's outcome on a single assessment.
type AssessmentReportRow struct {
	StudentID   string   `json:"student_id"`
	StudentName string   `json:"student_name"`
	NIS         string   `json:"nis"`
	Score       *float64 `json:"score,omitempty"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Feedback    *string  `json:"feedback,omitempty"`
}

// AssessmentReport shows one assessment's results within a class.
type AssessmentReport struct {
	Pair       ClassSubjectPair      `json:"pair"`
	Assessment ReportAssessment      `json:"assessment"`
	Rows       []AssessmentReportRow `json:"rows"`
	Submitted  int                   `json:"submitted"`
	RosterSize int                   `json:"roster_size"`
	Min        *float64              `json:"min,omitempty"`
	Max        *float64              `json:"max,omitempty"`
	Mean       *float64              `json:"mean,omitempty"`
}

// StudentAssessmentRow is one assessment line in a student report.
type StudentAssessmentRow struct {
	Assessment ReportAssessment `json:"assessment"`
	Score      *float64         `json:"score,omitempty"`
	Percentage *float64         `json:"percentage,omitempty"`
	Feedback   *string          `json:"feedback,omitempty"`
}

// StudentReport lists one student's results within a class/subject.
type StudentReport struct {
	Pair    ClassSubjectPair       `json:"pair"`
	Student ReportStudent          `json:"student"`
	Rows    []StudentAssessmentRow `json:"rows"`
	Average *float64               `json:"average,omitempty"`
}

// ReportData is the raw material the aggregation is computed from.
type ReportData struct {
	Assessments []ReportAssessment
	Students    []ReportStudent
	Results     []ReportResult
}

// ReportView is the reports page state for one selection. Only the report
// matching Type is set.
type ReportView struct {
	Type       string             `json:"type"`
	Pairs      []ClassSubjectPair `json:"pairs"`
	Pair       *ClassSubjectPair  `json:"pair,omitempty"`
	Class      *ClassReport       `json:"class,omitempty"`
	Assessment *AssessmentReport  `json:"assessment,omitempty"`
	Student    *StudentReport     `json:"student,omitempty"`
	Students   []ReportStudent    `json:"students,omitempty"`
	Choices    []ReportAssessment `json:"choices,omitempty"`
}
