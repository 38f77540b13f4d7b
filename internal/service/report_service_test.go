package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type reportRepoStub struct {
	data  *models.ReportData
	calls int
}

func (r *reportRepoStub) PairData(ctx context.Context, semesterID, classID, subjectID string) (*models.ReportData, error) {
	r.calls++
	return r.data, nil
}

func sampleReportData() *models.ReportData {
	feedback := "Good work"
	return &models.ReportData{
		Assessments: []models.ReportAssessment{
			{ID: "quiz-1", Title: "Quiz 1", TypeName: "Quiz", TotalMaxScore: 20},
			{ID: "mid", Title: "Midterm", TypeName: "Exam", TotalMaxScore: 80},
			{ID: "empty", Title: "Draft", TypeName: "Quiz", TotalMaxScore: 0},
		},
		Students: []models.ReportStudent{
			{ID: "s-1", FullName: "Ani", NIS: "001"},
			{ID: "s-2", FullName: "Budi", NIS: "002"},
			{ID: "s-3", FullName: "Citra", NIS: "003"},
		},
		Results: []models.ReportResult{
			{AssessmentID: "quiz-1", StudentID: "s-1", Score: 15, Feedback: &feedback},
			{AssessmentID: "mid", StudentID: "s-1", Score: 60},
			{AssessmentID: "quiz-1", StudentID: "s-2", Score: 10},
			{AssessmentID: "empty", StudentID: "s-2", Score: 5},
		},
	}
}

func TestBuildClassReportAggregation(t *testing.T) {
	report := BuildClassReport(pairA, "sem-1", sampleReportData())

	require.Len(t, report.Rows, 3)
	assert.Equal(t, []string{"Quiz", "Exam"}, report.TypeNames)

	ani := report.Rows[0]
	assert.InDelta(t, 75, ani.TotalScore, 0.001)
	assert.InDelta(t, 100, ani.TotalPossible, 0.001)
	require.NotNil(t, ani.Average)
	assert.InDelta(t, 75, *ani.Average, 0.001)
	assert.InDelta(t, 75, *ani.TypeAverages["Quiz"], 0.001)
	assert.InDelta(t, 75, *ani.TypeAverages["Exam"], 0.001)

	budi := report.Rows[1]
	assert.InDelta(t, 10, budi.TotalScore, 0.001, "zero-point assessments do not count")
	assert.InDelta(t, 20, budi.TotalPossible, 0.001, "missing results are excluded from the denominator")
	assert.InDelta(t, 50, *budi.Average, 0.001)
	assert.Nil(t, budi.Scores[1])
	require.NotNil(t, budi.Scores[2])
	assert.Nil(t, budi.TypeAverages["Exam"])

	citra := report.Rows[2]
	assert.Nil(t, citra.Average)
	assert.Zero(t, citra.TotalPossible)

	stats := report.Statistics
	assert.Equal(t, 3, stats.StudentCount)
	assert.Equal(t, 2, stats.GradedCount)
	assert.InDelta(t, 62.5, *stats.ClassAverage, 0.001)
	assert.InDelta(t, 50, *stats.Lowest, 0.001)
	assert.InDelta(t, 75, *stats.Highest, 0.001)
}

func TestBuildClassReportEmpty(t *testing.T) {
	report := BuildClassReport(pairA, "sem-1", &models.ReportData{})
	assert.Empty(t, report.Rows)
	assert.NotNil(t, report.Assessments)
	assert.Nil(t, report.Statistics.ClassAverage)
}

func TestBuildAssessmentReport(t *testing.T) {
	report, err := BuildAssessmentReport(pairA, sampleReportData(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, 3, report.RosterSize)
	assert.InDelta(t, 12.5, *report.Mean, 0.001)
	assert.InDelta(t, 10, *report.Min, 0.001)
	assert.InDelta(t, 15, *report.Max, 0.001)
	assert.InDelta(t, 75, *report.Rows[0].Percentage, 0.001)
	assert.Equal(t, "Good work", *report.Rows[0].Feedback)
	assert.Nil(t, report.Rows[2].Score)

	_, err = BuildAssessmentReport(pairA, sampleReportData(), "other")
	assertAppError(t, err, appErrors.ErrNotFound, "")
}

func TestBuildStudentReport(t *testing.T) {
	report, err := BuildStudentReport(pairA, sampleReportData(), "s-2")
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Nil(t, report.Rows[1].Score)
	assert.Nil(t, report.Rows[2].Percentage)
	assert.InDelta(t, 50, *report.Average, 0.001)

	_, err = BuildStudentReport(pairA, sampleReportData(), "s-9")
	assertAppError(t, err, appErrors.ErrNotFound, "")
}

func TestClassReportDatasetMarksMissing(t *testing.T) {
	report := BuildClassReport(pairA, "sem-1", sampleReportData())
	data := ClassReportDataset(report)

	assert.Equal(t, []string{"No", "NIS", "Student", "Quiz 1", "Midterm", "Draft", "Quiz %", "Exam %", "Total", "Possible", "Average %"}, data.Headers)
	assert.Equal(t, "N/A", data.Rows[1]["Midterm"])
	assert.Equal(t, "75.00", data.Rows[0]["Average %"])
	assert.Equal(t, "N/A", data.Rows[2]["Average %"])
}

func newReportFixture(t *testing.T) (*ReportService, *reportRepoStub, *assignmentStub) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cacheSvc := NewCacheService(repository.NewCacheRepository(client, zap.NewNop()), nil, time.Minute, zap.NewNop(), true)

	repo := &reportRepoStub{data: sampleReportData()}
	assignments := newAssignmentStub()
	assignments.pairs = []models.ClassSubjectPair{pairA}
	svc := NewReportService(repo, newTestAccess(assignments), cacheSvc, NewMetricsService(), zap.NewNop())
	return svc, repo, assignments
}

func TestClassReportIsCached(t *testing.T) {
	svc, repo, _ := newReportFixture(t)
	ctx := context.Background()

	first, err := svc.ClassReport(ctx, testScope, "class-a", "math")
	require.NoError(t, err)
	second, err := svc.ClassReport(ctx, testScope, "class-a", "math")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, first.Statistics.GradedCount, second.Statistics.GradedCount)
	assert.Equal(t, "X-A", second.Pair.ClassName)
}

func TestClassReportRequiresAssignment(t *testing.T) {
	svc, repo, _ := newReportFixture(t)

	_, err := svc.ClassReport(context.Background(), testScope, "class-b", "math")
	assertAppError(t, err, appErrors.ErrForbidden, "You are not assigned to this class and subject.")
	assert.Zero(t, repo.calls)
}

func TestReportViewSelectsReportType(t *testing.T) {
	svc, _, _ := newReportFixture(t)
	ctx := context.Background()

	view, err := svc.View(ctx, testScope, dto.ReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, models.ReportClass, view.Type)
	assert.Nil(t, view.Class)
	assert.Len(t, view.Pairs, 1)

	view, err = svc.View(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", ReportType: "student", StudentID: "s-1"})
	require.NoError(t, err)
	require.NotNil(t, view.Student)
	assert.Len(t, view.Students, 3)
	assert.Len(t, view.Choices, 3)

	view, err = svc.View(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", ReportType: "assessment", AssessmentID: "mid"})
	require.NoError(t, err)
	require.NotNil(t, view.Assessment)
	assert.Equal(t, 1, view.Assessment.Submitted)
}

func TestReportExportFormats(t *testing.T) {
	svc, _, _ := newReportFixture(t)
	ctx := context.Background()

	out, err := svc.Export(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", Export: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "X_A_Math_results.csv", out.Filename)
	var buf bytes.Buffer
	n, err := out.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	assert.Contains(t, buf.String(), "Ani")

	out, err = svc.Export(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", Export: "pdf"})
	require.NoError(t, err)
	buf.Reset()
	_, err = out.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	out, err = svc.Export(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", Export: "xlsx"})
	require.NoError(t, err)
	buf.Reset()
	_, err = out.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))

	_, err = svc.Export(ctx, testScope, dto.ReportQuery{ClassID: "class-a", SubjectID: "math", Export: "doc"})
	assertAppError(t, err, appErrors.ErrValidation, "Unsupported export format.")
}
