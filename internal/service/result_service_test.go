package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

// resultRepoStub keeps one row per (assessment, student) like the upsert does.
type resultRepoStub struct {
	rows    map[string]*models.Result
	grading []models.GradingRow
}

func (r *resultRepoStub) Upsert(ctx context.Context, result *models.Result) error {
	key := result.AssessmentID + "/" + result.StudentID
	if existing, ok := r.rows[key]; ok {
		result.ID = existing.ID
	} else {
		result.ID = "r-" + key
	}
	stored := *result
	r.rows[key] = &stored
	return nil
}

func (r *resultRepoStub) GradingRows(ctx context.Context, teacherID, semesterID, assessmentID string) ([]models.GradingRow, error) {
	return r.grading, nil
}

func newResultFixture() (*ResultService, *resultRepoStub, *assignmentStub, *invalidatorStub) {
	repo := &resultRepoStub{rows: map[string]*models.Result{}}
	assessments := newAssessmentRepoStub()
	assessments.details["a-1"] = &models.AssessmentDetail{Assessment: models.Assessment{ID: "a-1", Title: "Quiz 1", Status: models.AssessmentCompleted}}
	assessments.pairs["a-1"] = []models.ClassSubjectPair{pairA, pairB}
	questions := newQuestionRepoStub()
	questions.questions["q-1"] = &models.Question{ID: "q-1", AssessmentID: "a-1", QuestionBody: models.QuestionBody{MaxScore: 40}}
	questions.questions["q-2"] = &models.Question{ID: "q-2", AssessmentID: "a-1", QuestionBody: models.QuestionBody{MaxScore: 60}}

	assignments := newAssignmentStub()
	assignments.owned["a-1"] = true
	assignments.students["s-1"] = true
	invalidator := &invalidatorStub{}
	svc := NewResultService(repo, assessments, questions, newTestAccess(assignments), invalidator, nil, NewMetricsService(), validator.New(), zap.NewNop())
	return svc, repo, assignments, invalidator
}

func score(v float64) *float64 { return &v }

func TestResultRecordUpserts(t *testing.T) {
	svc, repo, _, invalidator := newResultFixture()
	ctx := context.Background()

	_, err := svc.Record(ctx, testScope, dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(70)})
	require.NoError(t, err)
	result, err := svc.Record(ctx, testScope, dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(85), Feedback: "  Better  "})
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	stored := repo.rows["a-1/s-1"]
	assert.Equal(t, 85.0, stored.Score)
	assert.Equal(t, models.ResultCompleted, stored.Status)
	require.NotNil(t, result.Feedback)
	assert.Equal(t, "Better", *result.Feedback)
	assert.Contains(t, invalidator.patterns, cache.ReportPattern("class-a", "math"))
	assert.Contains(t, invalidator.patterns, cache.ReportPattern("class-b", "math"))
}

func TestResultRecordValidation(t *testing.T) {
	cases := []struct {
		name    string
		form    dto.ResultForm
		kind    *appErrors.Error
		message string
	}{
		{"missing score", dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1"}, appErrors.ErrValidation, "Score is required."},
		{"score above range", dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(101)}, appErrors.ErrValidation, "Score must be between 0 and 100."},
		{"negative score", dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(-1)}, appErrors.ErrValidation, "Score must be between 0 and 100."},
		{"bad status", dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(50), Status: "graded"}, appErrors.ErrValidation, "Invalid result status."},
		{"foreign student", dto.ResultForm{AssessmentID: "a-1", StudentID: "s-9", Score: score(50)}, appErrors.ErrForbidden, "Student not found in your classes for this assessment."},
		{"foreign assessment", dto.ResultForm{AssessmentID: "a-9", StudentID: "s-1", Score: score(50)}, appErrors.ErrForbidden, msgAssessmentUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, _ := newResultFixture()
			_, err := svc.Record(context.Background(), testScope, tc.form)
			assertAppError(t, err, tc.kind, tc.message)
			assert.Empty(t, repo.rows)
		})
	}
}

func TestResultGradingSheet(t *testing.T) {
	svc, repo, _, _ := newResultFixture()
	repo.grading = []models.GradingRow{{StudentID: "s-1", StudentName: "Ani", Score: score(80)}, {StudentID: "s-2", StudentName: "Budi"}}

	sheet, err := svc.GradingSheet(context.Background(), testScope, "a-1")
	require.NoError(t, err)
	assert.InDelta(t, 100, sheet.TotalMaxScore, 0.001)
	assert.Len(t, sheet.Rows, 2)
	assert.Len(t, sheet.Assessment.Pairs, 2)

	_, err = svc.GradingSheet(context.Background(), testScope, "")
	assertAppError(t, err, appErrors.ErrValidation, "Please select an assessment.")
}

func TestResultRecordSurvivesCacheFailure(t *testing.T) {
	svc, repo, _, _ := newResultFixture()
	invalidator := &failingInvalidator{}
	svc.reports.cache = invalidator

	_, err := svc.Record(context.Background(), testScope, dto.ResultForm{AssessmentID: "a-1", StudentID: "s-1", Score: score(90)})
	require.NoError(t, err)
	assert.Len(t, repo.rows, 1)
	assert.Len(t, invalidator.patterns, 2)
}
