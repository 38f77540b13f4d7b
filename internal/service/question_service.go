package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/repository"
	"github.com/noah-isme/sma-adp-assessments/pkg/config"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type questionRepository interface {
	ListByAssessment(ctx context.Context, assessmentID string) ([]models.Question, error)
	FindByID(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	Update(ctx context.Context, question *models.Question) error
	CountAnswers(ctx context.Context, questionID string) (int, error)
	Delete(ctx context.Context, questionID string, withAnswers bool) error
}

type assessmentDetailReader interface {
	FindDetail(ctx context.Context, id string) (*models.AssessmentDetail, error)
	ListPairs(ctx context.Context, assessmentID string) ([]models.ClassSubjectPair, error)
}

type imageOwnership interface {
	BelongsTo(ctx context.Context, teacherID, imageID string) (bool, error)
}

// QuestionService authors the questions of pending assessments.
type QuestionService struct {
	repo         questionRepository
	assessments  assessmentDetailReader
	images       imageOwnership
	access       *AccessService
	reports      reportCache
	activity     activityRecorder
	validator    *validator.Validate
	logger       *zap.Logger
	deletePolicy string
}

// NewQuestionService constructs a QuestionService. deletePolicy is one of the
// config.QuestionDelete* values.
func NewQuestionService(repo questionRepository, assessments assessmentDetailReader, images imageOwnership, access *AccessService, cache cacheInvalidator, activity activityRecorder, validate *validator.Validate, logger *zap.Logger, deletePolicy string) *QuestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = noopActivity{}
	}
	if deletePolicy != config.QuestionDeleteCascade {
		deletePolicy = config.QuestionDeleteBlock
	}
	return &QuestionService{
		repo:         repo,
		assessments:  assessments,
		images:       images,
		access:       access,
		reports:      reportCache{cache: cache, pairs: assessments, logger: logger},
		activity:     activity,
		validator:    validate,
		logger:       logger,
		deletePolicy: deletePolicy,
	}
}

// Page loads an owned assessment with its questions. Completed assessments can
// be viewed but Editable is false.
func (s *QuestionService) Page(ctx context.Context, scope models.TeacherScope, assessmentID string) (*models.QuestionPage, error) {
	if err := s.access.RequireAssessment(ctx, scope, assessmentID, false); err != nil {
		return nil, err
	}
	detail, err := s.assessments.FindDetail(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Assessment not found.")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	if detail.Pairs, err = s.assessments.ListPairs(ctx, assessmentID); err != nil {
		return nil, appErrors.Internal(err, "failed to load assessment classes")
	}
	questions, err := s.repo.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list questions")
	}
	page := &models.QuestionPage{
		Assessment: *detail,
		Questions:  questions,
		Editable:   detail.Status == models.AssessmentPending,
	}
	for _, q := range questions {
		page.TotalMaxScore += q.MaxScore
	}
	return page, nil
}

// Get loads a question for the edit form.
func (s *QuestionService) Get(ctx context.Context, scope models.TeacherScope, questionID string) (*models.Question, error) {
	if _, err := s.access.RequirePendingQuestion(ctx, scope, questionID); err != nil {
		return nil, err
	}
	return s.find(ctx, questionID)
}

func (s *QuestionService) find(ctx context.Context, questionID string) (*models.Question, error) {
	question, err := s.repo.FindByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Question not found.")
		}
		return nil, appErrors.Internal(err, "failed to load question")
	}
	return question, nil
}

// Create adds a question to a pending owned assessment.
func (s *QuestionService) Create(ctx context.Context, scope models.TeacherScope, form dto.QuestionForm) (*models.Question, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, validationError(err)
	}
	if err := s.access.RequireAssessment(ctx, scope, form.AssessmentID, true); err != nil {
		return nil, err
	}
	body, err := buildQuestionBody(ctx, s.validator, s.images, scope.TeacherID, form.QuestionContent)
	if err != nil {
		return nil, err
	}
	question := &models.Question{AssessmentID: form.AssessmentID, QuestionBody: body}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Internal(err, "failed to create question")
	}
	s.reports.clearAssessment(ctx, form.AssessmentID)
	s.activity.Record(ctx, scope, models.ActivityQuestionCreate, "question", question.ID, map[string]interface{}{
		"assessment_id": form.AssessmentID,
		"type":          question.QuestionType,
	})
	return question, nil
}

// Update rewrites a question of a pending owned assessment; its options are
// replaced as a whole.
func (s *QuestionService) Update(ctx context.Context, scope models.TeacherScope, form dto.QuestionForm) (*models.Question, error) {
	if strings.TrimSpace(form.QuestionID) == "" {
		return nil, invalid("Question id is required.")
	}
	assessmentID, err := s.access.RequirePendingQuestion(ctx, scope, form.QuestionID)
	if err != nil {
		return nil, err
	}
	if form.AssessmentID != "" && form.AssessmentID != assessmentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, msgAssessmentUnavailable)
	}
	form.AssessmentID = assessmentID
	if err := s.validator.Struct(form); err != nil {
		return nil, validationError(err)
	}

	question, err := s.find(ctx, form.QuestionID)
	if err != nil {
		return nil, err
	}
	if form.Version != 0 && form.Version != question.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, msgStaleVersion)
	}
	body, err := buildQuestionBody(ctx, s.validator, s.images, scope.TeacherID, form.QuestionContent)
	if err != nil {
		return nil, err
	}
	question.QuestionBody = body
	if err := s.repo.Update(ctx, question); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrConflict, msgStaleVersion)
		}
		return nil, appErrors.Internal(err, "failed to update question")
	}
	s.reports.clearAssessment(ctx, assessmentID)
	s.activity.Record(ctx, scope, models.ActivityQuestionUpdate, "question", question.ID, map[string]interface{}{
		"assessment_id": assessmentID,
	})
	return question, nil
}

// Delete removes a question of a pending owned assessment. Under the block
// policy a question that students have answered is kept.
func (s *QuestionService) Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteQuestionForm) (string, error) {
	if err := s.validator.Struct(form); err != nil {
		return "", validationError(err)
	}
	assessmentID, err := s.access.RequirePendingQuestion(ctx, scope, form.QuestionID)
	if err != nil {
		return "", err
	}
	answers, err := s.repo.CountAnswers(ctx, form.QuestionID)
	if err != nil {
		return "", appErrors.Internal(err, "failed to count question answers")
	}
	if answers > 0 && s.deletePolicy == config.QuestionDeleteBlock {
		return "", appErrors.Clone(appErrors.ErrConflict, "Cannot delete a question that students have already answered.")
	}
	if err := s.repo.Delete(ctx, form.QuestionID, answers > 0); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "Question not found.")
		}
		return "", appErrors.Internal(err, "failed to delete question")
	}
	s.reports.clearAssessment(ctx, assessmentID)
	s.activity.Record(ctx, scope, models.ActivityQuestionDelete, "question", form.QuestionID, map[string]interface{}{
		"assessment_id":   assessmentID,
		"answers_deleted": answers,
	})
	return assessmentID, nil
}

// buildQuestionBody validates submitted question content and derives the stored
// columns from its answer spec.
func buildQuestionBody(ctx context.Context, v *validator.Validate, images imageOwnership, teacherID string, content dto.QuestionContent) (models.QuestionBody, error) {
	content.QuestionText = strings.TrimSpace(content.QuestionText)
	if err := v.Struct(content); err != nil {
		return models.QuestionBody{}, validationError(err)
	}
	if content.MaxScore < models.MinQuestionScore || content.MaxScore > models.MaxQuestionScore {
		return models.QuestionBody{}, invalid("Max score must be between 0.5 and 100.")
	}

	body := models.QuestionBody{QuestionText: content.QuestionText, MaxScore: content.MaxScore}
	if err := body.ApplySpec(answerSpecFromContent(content)); err != nil {
		return models.QuestionBody{}, invalid(err.Error())
	}

	if imageID := content.TrimmedImageID(); imageID != nil {
		if images == nil {
			return models.QuestionBody{}, invalid("Selected image was not found.")
		}
		ok, err := images.BelongsTo(ctx, teacherID, *imageID)
		if err != nil {
			return models.QuestionBody{}, appErrors.Internal(err, "failed to check image ownership")
		}
		if !ok {
			return models.QuestionBody{}, invalid("Selected image was not found.")
		}
		body.ImageID = imageID
	}
	return body, nil
}

// answerSpecFromContent picks the answer variant from the submitted type and mode.
// An unknown type yields nil.
func answerSpecFromContent(content dto.QuestionContent) models.AnswerSpec {
	switch models.QuestionType(content.QuestionType) {
	case models.QuestionMCQ:
		correct := -1
		if content.CorrectOption != nil {
			correct = *content.CorrectOption
		}
		return models.NewMCQSpec(content.Options, correct)
	case models.QuestionShortAnswer:
		if models.AnswerMode(content.AnswerMode) == models.AnswerAnyMatch {
			return models.NewAnyMatchSpec(content.ValidAnswers, content.AnswerCount, content.MultipleAnswersAllowed)
		}
		return models.ExactSpec{Answer: content.CorrectAnswer, MultipleAnswersAllowed: content.MultipleAnswersAllowed}
	}
	return nil
}
