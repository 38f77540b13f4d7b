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
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type questionBankRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.BankQuestion, error)
	FindByID(ctx context.Context, teacherID, id string) (*models.BankQuestion, error)
	Create(ctx context.Context, item *models.BankQuestion) error
	Update(ctx context.Context, item *models.BankQuestion) error
	Delete(ctx context.Context, teacherID, id string) error
}

type questionCreator interface {
	Create(ctx context.Context, question *models.Question) error
}

// QuestionBankService manages a teacher's private question templates and
// imports them into assessments.
type QuestionBankService struct {
	repo      questionBankRepository
	questions questionCreator
	images    imageOwnership
	access    *AccessService
	reports   reportCache
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionBankService constructs a QuestionBankService. assessments resolves
// the pairs whose reports an import touches.
func NewQuestionBankService(repo questionBankRepository, questions questionCreator, assessments pairLister, images imageOwnership, access *AccessService, cache cacheInvalidator, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *QuestionBankService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = noopActivity{}
	}
	return &QuestionBankService{
		repo:      repo,
		questions: questions,
		images:    images,
		access:    access,
		reports:   reportCache{cache: cache, pairs: assessments, logger: logger},
		activity:  activity,
		validator: validate,
		logger:    logger,
	}
}

// List returns the teacher's templates with usage counts.
func (s *QuestionBankService) List(ctx context.Context, scope models.TeacherScope) ([]models.BankQuestion, error) {
	items, err := s.repo.ListByTeacher(ctx, scope.TeacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list question bank")
	}
	return items, nil
}

// Get loads one of the teacher's templates.
func (s *QuestionBankService) Get(ctx context.Context, scope models.TeacherScope, id string) (*models.BankQuestion, error) {
	item, err := s.repo.FindByID(ctx, scope.TeacherID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Question bank entry not found.")
		}
		return nil, appErrors.Internal(err, "failed to load question bank entry")
	}
	return item, nil
}

// Create stores a new template.
func (s *QuestionBankService) Create(ctx context.Context, scope models.TeacherScope, form dto.BankQuestionForm) (*models.BankQuestion, error) {
	body, err := buildQuestionBody(ctx, s.validator, s.images, scope.TeacherID, form.QuestionContent)
	if err != nil {
		return nil, err
	}
	item := &models.BankQuestion{TeacherID: scope.TeacherID, QuestionBody: body}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Internal(err, "failed to create question bank entry")
	}
	s.activity.Record(ctx, scope, models.ActivityBankCreate, "question_bank", item.ID, nil)
	return item, nil
}

// Update rewrites one of the teacher's templates.
func (s *QuestionBankService) Update(ctx context.Context, scope models.TeacherScope, form dto.BankQuestionForm) (*models.BankQuestion, error) {
	if strings.TrimSpace(form.BankQuestionID) == "" {
		return nil, invalid("Question bank entry id is required.")
	}
	item, err := s.Get(ctx, scope, form.BankQuestionID)
	if err != nil {
		return nil, err
	}
	body, err := buildQuestionBody(ctx, s.validator, s.images, scope.TeacherID, form.QuestionContent)
	if err != nil {
		return nil, err
	}
	item.QuestionBody = body
	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Question bank entry not found.")
		}
		return nil, appErrors.Internal(err, "failed to update question bank entry")
	}
	s.activity.Record(ctx, scope, models.ActivityBankUpdate, "question_bank", item.ID, nil)
	return item, nil
}

// Delete removes one of the teacher's templates. Imported questions stay.
func (s *QuestionBankService) Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteBankQuestionForm) error {
	if err := s.validator.Struct(form); err != nil {
		return validationError(err)
	}
	if err := s.repo.Delete(ctx, scope.TeacherID, form.BankQuestionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Question bank entry not found.")
		}
		return appErrors.Internal(err, "failed to delete question bank entry")
	}
	s.activity.Record(ctx, scope, models.ActivityBankDelete, "question_bank", form.BankQuestionID, nil)
	return nil
}

// Import copies a template into a pending owned assessment.
func (s *QuestionBankService) Import(ctx context.Context, scope models.TeacherScope, form dto.ImportBankQuestionForm) (*models.Question, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, validationError(err)
	}
	if err := s.access.RequireAssessment(ctx, scope, form.AssessmentID, true); err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, scope, form.BankQuestionID)
	if err != nil {
		return nil, err
	}
	question := item.ToQuestion(form.AssessmentID)
	if err := s.questions.Create(ctx, &question); err != nil {
		return nil, appErrors.Internal(err, "failed to import question")
	}
	s.reports.clearAssessment(ctx, form.AssessmentID)
	s.activity.Record(ctx, scope, models.ActivityBankImport, "question", question.ID, map[string]interface{}{
		"assessment_id":    form.AssessmentID,
		"bank_question_id": item.ID,
	})
	return &question, nil
}
