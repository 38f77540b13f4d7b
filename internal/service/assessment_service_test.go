package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/repository"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type assessmentRepoStub struct {
	pendingOverdue int64
	expireCalls    []string
	expireErr      error
	summaries      []models.AssessmentSummary
	details        map[string]*models.AssessmentDetail
	pairs          map[string][]models.ClassSubjectPair
	attempts       map[string]bool

	created        *models.Assessment
	createdPairs   []models.ClassSubjectPair
	updated        *models.Assessment
	updatedPairs   []models.ClassSubjectPair
	updateCalls    int
	updateErr      error
	statusUpdates  map[string]models.AssessmentStatus
	deletedFrom    []models.ClassSubjectPair
	deleted        []string
	deleteClassErr error
}

func newAssessmentRepoStub() *assessmentRepoStub {
	return &assessmentRepoStub{
		details:       map[string]*models.AssessmentDetail{},
		pairs:         map[string][]models.ClassSubjectPair{},
		attempts:      map[string]bool{},
		statusUpdates: map[string]models.AssessmentStatus{},
	}
}

func (r *assessmentRepoStub) ExpireOverdue(ctx context.Context, teacherID, semesterID, now string) (int64, error) {
	r.expireCalls = append(r.expireCalls, now)
	if r.expireErr != nil {
		return 0, r.expireErr
	}
	n := r.pendingOverdue
	r.pendingOverdue = 0
	return n, nil
}

func (r *assessmentRepoStub) ListForTeacher(ctx context.Context, teacherID, semesterID string) ([]models.AssessmentSummary, error) {
	return r.summaries, nil
}

func (r *assessmentRepoStub) FindDetail(ctx context.Context, id string) (*models.AssessmentDetail, error) {
	d, ok := r.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *d
	return &out, nil
}

func (r *assessmentRepoStub) ListPairs(ctx context.Context, assessmentID string) ([]models.ClassSubjectPair, error) {
	return r.pairs[assessmentID], nil
}

func (r *assessmentRepoStub) HasAttempts(ctx context.Context, assessmentID string) (bool, error) {
	return r.attempts[assessmentID], nil
}

func (r *assessmentRepoStub) Create(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error {
	assessment.ID = "new-id"
	assessment.Version = 1
	r.created = assessment
	r.createdPairs = pairs
	return nil
}

func (r *assessmentRepoStub) Update(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updated = assessment
	r.updatedPairs = pairs
	return nil
}

func (r *assessmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.AssessmentStatus) error {
	r.statusUpdates[id] = status
	return nil
}

func (r *assessmentRepoStub) DeleteFromClass(ctx context.Context, assessmentID, classID, subjectID string) (bool, error) {
	if r.deleteClassErr != nil {
		return false, r.deleteClassErr
	}
	r.deletedFrom = append(r.deletedFrom, models.ClassSubjectPair{ClassID: classID, SubjectID: subjectID})
	remaining := r.pairs[assessmentID][:0]
	for _, p := range r.pairs[assessmentID] {
		if p.ClassID != classID || p.SubjectID != subjectID {
			remaining = append(remaining, p)
		}
	}
	r.pairs[assessmentID] = remaining
	return len(remaining) == 0, nil
}

func (r *assessmentRepoStub) Delete(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

type assessmentTypeStub struct{}

func (assessmentTypeStub) ListAssessmentTypes(ctx context.Context) ([]models.AssessmentType, error) {
	return []models.AssessmentType{{ID: "quiz", Name: "Quiz"}}, nil
}

func (assessmentTypeStub) AssessmentTypeExists(ctx context.Context, id string) (bool, error) {
	return id == "quiz", nil
}

type assessmentFixture struct {
	svc         *AssessmentService
	repo        *assessmentRepoStub
	assignments *assignmentStub
	activity    *activityStub
	cache       *invalidatorStub
	metrics     *MetricsService
}

func newAssessmentFixture() *assessmentFixture {
	f := &assessmentFixture{
		repo:        newAssessmentRepoStub(),
		assignments: newAssignmentStub(),
		activity:    &activityStub{},
		cache:       &invalidatorStub{},
		metrics:     NewMetricsService(),
	}
	f.assignments.pairs = []models.ClassSubjectPair{pairA, pairB}
	f.svc = NewAssessmentService(f.repo, assessmentTypeStub{}, newTestAccess(f.assignments), f.cache, f.activity, f.metrics, validator.New(), zap.NewNop(), time.UTC)
	f.svc.now = func() time.Time { return time.Date(2025, 9, 10, 8, 30, 0, 0, time.UTC) }
	return f
}

// seed registers an owned assessment with the given status and pairs.
func (f *assessmentFixture) seed(id string, status models.AssessmentStatus, pairs ...models.ClassSubjectPair) *models.AssessmentDetail {
	start, end, duration := "09:00", "10:00", 45
	detail := &models.AssessmentDetail{Assessment: models.Assessment{
		ID:               id,
		Title:            "Quiz 1",
		AssessmentDate:   time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC),
		StartTime:        &start,
		EndTime:          &end,
		DurationMinutes:  &duration,
		SemesterID:       "sem-1",
		AssessmentTypeID: "quiz",
		Status:           status,
		Version:          2,
	}}
	f.repo.details[id] = detail
	f.repo.pairs[id] = append([]models.ClassSubjectPair(nil), pairs...)
	f.assignments.owned[id] = true
	f.assignments.pending[id] = status == models.AssessmentPending
	return detail
}

func validForm() dto.AssessmentForm {
	return dto.AssessmentForm{
		Title:            "Quiz 1",
		AssessmentDate:   "2025-09-12",
		StartTime:        "09:00",
		EndTime:          "10:00",
		DurationMinutes:  45,
		SemesterID:       "sem-1",
		AssessmentTypeID: "quiz",
		ClassSubjects:    []string{"class-a:math"},
	}
}

func TestAssessmentListExpiresAndGroups(t *testing.T) {
	f := newAssessmentFixture()
	f.repo.pendingOverdue = 1
	f.repo.summaries = []models.AssessmentSummary{
		{ID: "a-1", Title: "Quiz 1", ClassID: "class-a", SubjectID: "math", ClassName: "X-A", SubjectName: "Math"},
		{ID: "a-2", Title: "Quiz 2", ClassID: "class-b", SubjectID: "math", ClassName: "X-B", SubjectName: "Math"},
		{ID: "a-3", Title: "Quiz 3", ClassID: "class-a", SubjectID: "math", ClassName: "X-A", SubjectName: "Math"},
	}

	listing, err := f.svc.List(context.Background(), testScope)
	require.NoError(t, err)
	assert.EqualValues(t, 1, listing.Expired)
	assert.Equal(t, []string{"2025-09-10 08:30:00"}, f.repo.expireCalls)
	require.Len(t, listing.Groups, 2)
	assert.Equal(t, "X-A", listing.Groups[0].Pair.ClassName)
	assert.Len(t, listing.Groups[0].Assessments, 2)
	assert.Equal(t, "a-2", listing.Groups[1].Assessments[0].ID)
	assert.Equal(t, []string{models.ActivityAssessmentExpire}, f.activity.actions())
	assert.Equal(t, []string{cache.ReportPattern("class-a", "math"), cache.ReportPattern("class-b", "math")}, f.cache.patterns)

	again, err := f.svc.List(context.Background(), testScope)
	require.NoError(t, err)
	assert.Zero(t, again.Expired)
	assert.Len(t, f.activity.entries, 1)
	assert.Len(t, f.cache.patterns, 2)
}

func TestAssessmentListSurvivesExpiryFailure(t *testing.T) {
	f := newAssessmentFixture()
	f.repo.expireErr = errors.New("db down")

	listing, err := f.svc.List(context.Background(), testScope)
	require.NoError(t, err)
	assert.Zero(t, listing.Expired)
	assert.Empty(t, f.cache.patterns)
}

func TestAssessmentCreate(t *testing.T) {
	f := newAssessmentFixture()
	form := validForm()
	form.ClassSubjects = []string{"class-a:math", "class-b:math", "class-a:math"}
	form.LateSubmissionDays = 3

	created, err := f.svc.Create(context.Background(), testScope, form)
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentPending, created.Status)
	assert.Equal(t, "teacher-1", created.CreatedBy)
	assert.Zero(t, created.LateSubmissionDays, "late days only apply when late submission is allowed")
	require.Len(t, f.repo.createdPairs, 2)
	assert.Equal(t, "X-B", f.repo.createdPairs[1].ClassName)
	assert.Equal(t, []string{cache.ReportPattern("class-a", "math"), cache.ReportPattern("class-b", "math")}, f.cache.patterns)
}

func TestAssessmentCreateValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*dto.AssessmentForm)
		kind    *appErrors.Error
		message string
	}{
		{"duration exceeds window", func(f *dto.AssessmentForm) { f.DurationMinutes = 90 }, appErrors.ErrValidation, "Duration cannot exceed the time between start and end times."},
		{"end before start", func(f *dto.AssessmentForm) { f.EndTime = "08:00" }, appErrors.ErrValidation, "End time must be after start time."},
		{"missing title", func(f *dto.AssessmentForm) { f.Title = "   " }, appErrors.ErrValidation, "Title is required."},
		{"missing type", func(f *dto.AssessmentForm) { f.AssessmentTypeID = "" }, appErrors.ErrValidation, "Please select an assessment type."},
		{"unknown type", func(f *dto.AssessmentForm) { f.AssessmentTypeID = "exam" }, appErrors.ErrValidation, "Selected assessment type does not exist."},
		{"unknown semester", func(f *dto.AssessmentForm) { f.SemesterID = "sem-9" }, appErrors.ErrValidation, "Selected semester does not exist."},
		{"no classes", func(f *dto.AssessmentForm) { f.ClassSubjects = nil }, appErrors.ErrValidation, "Please select at least one class and subject."},
		{"unassigned class", func(f *dto.AssessmentForm) { f.ClassSubjects = []string{"class-z:math"} }, appErrors.ErrForbidden, "You are not assigned to one or more of the selected classes."},
		{"question pool without count", func(f *dto.AssessmentForm) { f.UseQuestionLimit = true }, appErrors.ErrValidation, "Number of questions to answer must be at least 1."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAssessmentFixture()
			form := validForm()
			tc.mutate(&form)

			_, err := f.svc.Create(context.Background(), testScope, form)
			assertAppError(t, err, tc.kind, tc.message)
			assert.Nil(t, f.repo.created)
			assert.Empty(t, f.cache.patterns)
		})
	}
}

func TestAssessmentUpdateBlocksClassChangeAfterAttempts(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA)
	f.repo.attempts["a-1"] = true
	form := validForm()
	form.ID = "a-1"
	form.ClassSubjects = []string{"class-a:math", "class-b:math"}

	_, err := f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrConflict, "Cannot modify class assignments as students have already started this assessment.")
	assert.Zero(t, f.repo.updateCalls)
}

func TestAssessmentUpdateAllowsClassChangeInEditMode(t *testing.T) {
	f := newAssessmentFixture()
	detail := f.seed("a-1", models.AssessmentCompleted, pairA)
	detail.ResetEditMode = true
	f.repo.attempts["a-1"] = true
	form := validForm()
	form.ID = "a-1"
	form.ClassSubjects = []string{"class-b:math"}

	changed, err := f.svc.Update(context.Background(), testScope, form)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, f.repo.updatedPairs, 1)
	assert.Equal(t, "class-b", f.repo.updatedPairs[0].ClassID)
	assert.Equal(t, []string{cache.ReportPattern("class-a", "math"), cache.ReportPattern("class-b", "math")}, f.cache.patterns)
}

func TestAssessmentUpdateCompletedIsLocked(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentCompleted, pairA)
	form := validForm()
	form.ID = "a-1"
	form.Title = "Renamed"

	_, err := f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrForbidden, "This assessment is completed and can no longer be edited.")
	assert.Zero(t, f.repo.updateCalls)
}

func TestAssessmentUpdateNoChangesSkipsWrite(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA)
	form := validForm()
	form.ID = "a-1"
	form.Version = 2

	changed, err := f.svc.Update(context.Background(), testScope, form)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, f.repo.updateCalls)
	assert.Empty(t, f.cache.patterns)
}

func TestAssessmentUpdateKeepsPairsWhenUnchanged(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA)
	form := validForm()
	form.ID = "a-1"
	form.Title = "Quiz 1 (revised)"

	changed, err := f.svc.Update(context.Background(), testScope, form)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, f.repo.updatedPairs)
	assert.Equal(t, 2, f.repo.updated.Version)
	assert.Equal(t, "Quiz 1 (revised)", f.repo.updated.Title)
	assert.Equal(t, []string{cache.ReportPattern("class-a", "math")}, f.cache.patterns)
}

func TestAssessmentUpdateStaleVersion(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA)
	form := validForm()
	form.ID = "a-1"
	form.Title = "Other"

	form.Version = 1
	_, err := f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrConflict, msgStaleVersion)

	form.Version = 2
	f.repo.updateErr = repository.ErrStaleVersion
	_, err = f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrConflict, msgStaleVersion)
}

func TestAssessmentUpdateStatus(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA)
	ctx := context.Background()

	changed, err := f.svc.UpdateStatus(ctx, testScope, dto.StatusForm{AssessmentID: "a-1", Status: "pending"})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.svc.UpdateStatus(ctx, testScope, dto.StatusForm{AssessmentID: "a-1", Status: "archived"})
	assertAppError(t, err, appErrors.ErrValidation, "Invalid status transition.")

	_, err = f.svc.UpdateStatus(ctx, testScope, dto.StatusForm{AssessmentID: "a-1", Status: "closed"})
	assertAppError(t, err, appErrors.ErrValidation, "Invalid status.")
	assert.Empty(t, f.cache.patterns)

	changed, err = f.svc.UpdateStatus(ctx, testScope, dto.StatusForm{AssessmentID: "a-1", Status: "completed"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.AssessmentCompleted, f.repo.statusUpdates["a-1"])
	assert.Equal(t, []string{cache.ReportPattern("class-a", "math")}, f.cache.patterns)
}

func TestAssessmentUpdateStatusRequiresOwnership(t *testing.T) {
	f := newAssessmentFixture()

	_, err := f.svc.UpdateStatus(context.Background(), testScope, dto.StatusForm{AssessmentID: "foreign", Status: "completed"})
	assertAppError(t, err, appErrors.ErrForbidden, msgAssessmentUnavailable)
	assert.Empty(t, f.repo.statusUpdates)
}

func TestAssessmentDeleteFromClass(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA, pairB)
	ctx := context.Background()

	deletedAll, err := f.svc.DeleteFromClass(ctx, testScope, dto.DeleteFromClassForm{AssessmentID: "a-1", ClassID: "class-a", SubjectID: "math"})
	require.NoError(t, err)
	assert.False(t, deletedAll)

	deletedAll, err = f.svc.DeleteFromClass(ctx, testScope, dto.DeleteFromClassForm{AssessmentID: "a-1", ClassID: "class-b", SubjectID: "math"})
	require.NoError(t, err)
	assert.True(t, deletedAll)
	assert.Equal(t, []string{models.ActivityAssessmentUnassign, models.ActivityAssessmentDelete}, f.activity.actions())
	assert.Len(t, f.cache.patterns, 2)
}

func TestAssessmentDeleteFromClassRequiresPending(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentCompleted, pairA)

	_, err := f.svc.DeleteFromClass(context.Background(), testScope, dto.DeleteFromClassForm{AssessmentID: "a-1", ClassID: "class-a", SubjectID: "math"})
	assertAppError(t, err, appErrors.ErrForbidden, msgNotAuthorized)
	assert.Empty(t, f.repo.deletedFrom)
}

func TestAssessmentDelete(t *testing.T) {
	f := newAssessmentFixture()
	f.seed("a-1", models.AssessmentPending, pairA, pairB)

	require.NoError(t, f.svc.Delete(context.Background(), testScope, dto.DeleteAssessmentForm{AssessmentID: "a-1"}))
	assert.Equal(t, []string{"a-1"}, f.repo.deleted)
	assert.ElementsMatch(t, []string{cache.ReportPattern("class-a", "math"), cache.ReportPattern("class-b", "math")}, f.cache.patterns)
}
