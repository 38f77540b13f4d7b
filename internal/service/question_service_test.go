package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	"github.com/noah-isme/sma-adp-assessments/pkg/config"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type questionRepoStub struct {
	questions map[string]*models.Question
	answers   map[string]int
	created   []*models.Question
	deleted   map[string]bool
	seq       int
}

func newQuestionRepoStub() *questionRepoStub {
	return &questionRepoStub{questions: map[string]*models.Question{}, answers: map[string]int{}, deleted: map[string]bool{}}
}

func (r *questionRepoStub) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Question, error) {
	var out []models.Question
	for _, q := range r.questions {
		if q.AssessmentID == assessmentID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *questionRepoStub) FindByID(ctx context.Context, id string) (*models.Question, error) {
	q, ok := r.questions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *q
	return &out, nil
}

func (r *questionRepoStub) Create(ctx context.Context, question *models.Question) error {
	r.seq++
	question.ID = fmt.Sprintf("q-%d", r.seq)
	question.Version = 1
	r.created = append(r.created, question)
	stored := *question
	r.questions[question.ID] = &stored
	return nil
}

func (r *questionRepoStub) Update(ctx context.Context, question *models.Question) error {
	question.Version++
	stored := *question
	r.questions[question.ID] = &stored
	return nil
}

func (r *questionRepoStub) CountAnswers(ctx context.Context, questionID string) (int, error) {
	return r.answers[questionID], nil
}

func (r *questionRepoStub) Delete(ctx context.Context, questionID string, withAnswers bool) error {
	if _, ok := r.questions[questionID]; !ok {
		return sql.ErrNoRows
	}
	delete(r.questions, questionID)
	r.deleted[questionID] = withAnswers
	return nil
}

type imageOwnerStub map[string]string

func (s imageOwnerStub) BelongsTo(ctx context.Context, teacherID, imageID string) (bool, error) {
	return s[imageID] == teacherID, nil
}

type questionFixture struct {
	svc         *QuestionService
	repo        *questionRepoStub
	assessments *assessmentRepoStub
	assignments *assignmentStub
	activity    *activityStub
	cache       *invalidatorStub
}

func newQuestionFixture(policy string) *questionFixture {
	f := &questionFixture{
		repo:        newQuestionRepoStub(),
		assessments: newAssessmentRepoStub(),
		assignments: newAssignmentStub(),
		activity:    &activityStub{},
		cache:       &invalidatorStub{},
	}
	f.assignments.pairs = []models.ClassSubjectPair{pairA}
	for id, status := range map[string]models.AssessmentStatus{"a-1": models.AssessmentPending, "a-2": models.AssessmentCompleted} {
		f.assessments.details[id] = &models.AssessmentDetail{Assessment: models.Assessment{ID: id, Status: status}}
		f.assessments.pairs[id] = []models.ClassSubjectPair{pairA}
		f.assignments.owned[id] = true
		f.assignments.pending[id] = status == models.AssessmentPending
	}
	images := imageOwnerStub{"img-1": "teacher-1", "img-2": "teacher-2"}
	f.svc = NewQuestionService(f.repo, f.assessments, images, newTestAccess(f.assignments), f.cache, f.activity, validator.New(), zap.NewNop(), policy)
	return f
}

func mcqForm(assessmentID string, options []string, correct int) dto.QuestionForm {
	return dto.QuestionForm{
		AssessmentID: assessmentID,
		QuestionContent: dto.QuestionContent{
			QuestionText:  "  What is 2 + 2?  ",
			QuestionType:  string(models.QuestionMCQ),
			MaxScore:      10,
			Options:       options,
			CorrectOption: &correct,
			AnswerMode:    string(models.AnswerAnyMatch),
			AnswerCount:   3,
		},
	}
}

func TestQuestionCreateMCQShape(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)

	q, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", " ", "4", "5"}, 2))
	require.NoError(t, err)
	assert.Equal(t, "What is 2 + 2?", q.QuestionText)
	assert.Equal(t, models.AnswerExact, q.AnswerMode)
	assert.Equal(t, 1, q.AnswerCount)
	assert.False(t, q.MultipleAnswersAllowed)
	require.GreaterOrEqual(t, len(q.Options), 2)
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
			assert.Equal(t, "4", o.OptionText)
		}
	}
	assert.Equal(t, 1, correct)
	assert.Equal(t, []string{models.ActivityQuestionCreate}, f.activity.actions())
}

func TestQuestionCreateRejectsSingleOption(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)

	_, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"4"}, 0))
	assertAppError(t, err, appErrors.ErrValidation, "MCQ questions must have at least 2 options.")
	assert.Empty(t, f.repo.created)
}

func TestQuestionCreateAnyMatch(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)
	form := dto.QuestionForm{AssessmentID: "a-1", QuestionContent: dto.QuestionContent{
		QuestionText: "Name a primary colour",
		QuestionType: string(models.QuestionShortAnswer),
		MaxScore:     5,
		AnswerMode:   string(models.AnswerAnyMatch),
		ValidAnswers: []string{" red", "", "blue ", "yellow"},
		AnswerCount:  2,
	}}

	q, err := f.svc.Create(context.Background(), testScope, form)
	require.NoError(t, err)
	assert.Equal(t, models.AnswerAnyMatch, q.AnswerMode)
	assert.Equal(t, 2, q.AnswerCount)
	assert.Equal(t, []string{"red", "blue", "yellow"}, q.ValidAnswers())
}

func TestQuestionCreateValidation(t *testing.T) {
	cases := []struct {
		name    string
		content dto.QuestionContent
		message string
	}{
		{"score too high", dto.QuestionContent{QuestionText: "x", QuestionType: "Short Answer", MaxScore: 150, CorrectAnswer: "y"}, "Max score must be between 0.5 and 100."},
		{"empty exact answer", dto.QuestionContent{QuestionText: "x", QuestionType: "Short Answer", MaxScore: 5, CorrectAnswer: "  "}, "Correct answer is required for short answer questions."},
		{"no valid answers", dto.QuestionContent{QuestionText: "x", QuestionType: "Short Answer", MaxScore: 5, AnswerMode: "any_match", ValidAnswers: []string{" "}, AnswerCount: 1}, "At least one valid answer is required."},
		{"unknown type", dto.QuestionContent{QuestionText: "x", QuestionType: "Essay", MaxScore: 5}, "Please choose a question type."},
		{"foreign image", dto.QuestionContent{QuestionText: "x", QuestionType: "Short Answer", MaxScore: 5, CorrectAnswer: "y", ImageID: "img-2"}, "Selected image was not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newQuestionFixture(config.QuestionDeleteBlock)
			_, err := f.svc.Create(context.Background(), testScope, dto.QuestionForm{AssessmentID: "a-1", QuestionContent: tc.content})
			assertAppError(t, err, appErrors.ErrValidation, tc.message)
		})
	}
}

func TestQuestionCreateKeepsOwnImage(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)
	form := dto.QuestionForm{AssessmentID: "a-1", QuestionContent: dto.QuestionContent{
		QuestionText: "Describe the picture", QuestionType: "Short Answer", MaxScore: 5, CorrectAnswer: "cat", ImageID: " img-1 ",
	}}

	q, err := f.svc.Create(context.Background(), testScope, form)
	require.NoError(t, err)
	require.NotNil(t, q.ImageID)
	assert.Equal(t, "img-1", *q.ImageID)
}

func TestQuestionMutationBlockedOnCompletedAssessment(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)

	_, err := f.svc.Create(context.Background(), testScope, mcqForm("a-2", []string{"3", "4"}, 1))
	assertAppError(t, err, appErrors.ErrForbidden, msgAssessmentUnavailable)

	page, err := f.svc.Page(context.Background(), testScope, "a-2")
	require.NoError(t, err)
	assert.False(t, page.Editable)
}

func TestQuestionUpdateReplacesOptions(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)
	q, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", "4"}, 1))
	require.NoError(t, err)
	f.assignments.questionOwner[q.ID] = "a-1"

	form := mcqForm("a-1", []string{"1", "2", "4"}, 2)
	form.QuestionID = q.ID
	form.Version = q.Version
	updated, err := f.svc.Update(context.Background(), testScope, form)
	require.NoError(t, err)
	require.Len(t, updated.Options, 3)
	assert.True(t, updated.Options[2].IsCorrect)

	form.Version = 1
	_, err = f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrConflict, msgStaleVersion)
}

func TestQuestionUpdateRejectsOtherAssessment(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)
	q, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", "4"}, 1))
	require.NoError(t, err)
	f.assignments.questionOwner[q.ID] = "a-1"

	form := mcqForm("a-9", []string{"3", "4"}, 1)
	form.QuestionID = q.ID
	_, err = f.svc.Update(context.Background(), testScope, form)
	assertAppError(t, err, appErrors.ErrForbidden, "")
}

func TestQuestionDeletePolicies(t *testing.T) {
	for _, policy := range []string{config.QuestionDeleteBlock, config.QuestionDeleteCascade} {
		t.Run(policy, func(t *testing.T) {
			f := newQuestionFixture(policy)
			q, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", "4"}, 1))
			require.NoError(t, err)
			f.assignments.questionOwner[q.ID] = "a-1"
			f.repo.answers[q.ID] = 4

			assessmentID, err := f.svc.Delete(context.Background(), testScope, dto.DeleteQuestionForm{QuestionID: q.ID})
			if policy == config.QuestionDeleteBlock {
				assertAppError(t, err, appErrors.ErrConflict, "Cannot delete a question that students have already answered.")
				assert.Contains(t, f.repo.questions, q.ID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a-1", assessmentID)
			assert.True(t, f.repo.deleted[q.ID])
		})
	}
}

func TestQuestionDeleteWithoutAnswers(t *testing.T) {
	f := newQuestionFixture("")
	q, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", "4"}, 1))
	require.NoError(t, err)
	f.assignments.questionOwner[q.ID] = "a-1"

	_, err = f.svc.Delete(context.Background(), testScope, dto.DeleteQuestionForm{QuestionID: q.ID})
	require.NoError(t, err)
	assert.False(t, f.repo.deleted[q.ID])
}

func TestQuestionPageSumsScores(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)
	_, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"3", "4"}, 1))
	require.NoError(t, err)
	form := mcqForm("a-1", []string{"3", "4"}, 0)
	form.MaxScore = 2.5
	_, err = f.svc.Create(context.Background(), testScope, form)
	require.NoError(t, err)

	page, err := f.svc.Page(context.Background(), testScope, "a-1")
	require.NoError(t, err)
	assert.True(t, page.Editable)
	assert.Len(t, page.Questions, 2)
	assert.InDelta(t, 12.5, page.TotalMaxScore, 0.001)
	assert.Len(t, page.Assessment.Pairs, 1)
}

func TestQuestionWritesClearClassReports(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteCascade)
	f.assessments.pairs["a-1"] = []models.ClassSubjectPair{pairA, pairB}
	want := []string{cache.ReportPattern("class-a", "math"), cache.ReportPattern("class-b", "math")}
	ctx := context.Background()

	q, err := f.svc.Create(ctx, testScope, mcqForm("a-1", []string{"3", "4"}, 1))
	require.NoError(t, err)
	assert.Equal(t, want, f.cache.patterns)
	f.assignments.questionOwner[q.ID] = "a-1"

	f.cache.patterns = nil
	form := mcqForm("a-1", []string{"3", "4"}, 1)
	form.QuestionID = q.ID
	form.MaxScore = 20
	_, err = f.svc.Update(ctx, testScope, form)
	require.NoError(t, err)
	assert.Equal(t, want, f.cache.patterns)

	f.cache.patterns = nil
	_, err = f.svc.Delete(ctx, testScope, dto.DeleteQuestionForm{QuestionID: q.ID})
	require.NoError(t, err)
	assert.Equal(t, want, f.cache.patterns)
}

func TestQuestionRejectedWriteKeepsCache(t *testing.T) {
	f := newQuestionFixture(config.QuestionDeleteBlock)

	_, err := f.svc.Create(context.Background(), testScope, mcqForm("a-1", []string{"4"}, 0))
	require.Error(t, err)
	assert.Empty(t, f.cache.patterns)
}
