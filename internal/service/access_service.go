package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type teacherFinder interface {
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
}

type semesterReader interface {
	List(ctx context.Context) ([]models.Semester, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindCurrent(ctx context.Context, today time.Time) (*models.Semester, error)
}

type assignmentChecker interface {
	ListPairs(ctx context.Context, teacherID, semesterID string) ([]models.ClassSubjectPair, error)
	HasPair(ctx context.Context, teacherID, semesterID, classID, subjectID string) (bool, error)
	OwnsAssessment(ctx context.Context, teacherID, semesterID, assessmentID string, pendingOnly bool) (bool, error)
	OwnsAssessmentPair(ctx context.Context, teacherID, semesterID, assessmentID, classID, subjectID string, pendingOnly bool) (bool, error)
	PendingQuestionAssessment(ctx context.Context, teacherID, semesterID, questionID string) (string, error)
	TeachesStudent(ctx context.Context, teacherID, semesterID, assessmentID, studentID string) (bool, error)
}

// AccessService resolves the teacher behind a session and answers every
// ownership question through the assignment join chain. Nothing is cached
// between requests.
type AccessService struct {
	teachers    teacherFinder
	semesters   semesterReader
	assignments assignmentChecker
	loc         *time.Location
	now         func() time.Time
	logger      *zap.Logger
}

// NewAccessService constructs an AccessService. loc is the school's timezone.
func NewAccessService(teachers teacherFinder, semesters semesterReader, assignments assignmentChecker, loc *time.Location, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AccessService{teachers: teachers, semesters: semesters, assignments: assignments, loc: loc, now: time.Now, logger: logger}
}

// Resolve maps a logged-in user to a teacher scope. requestedSemester wins when
// it names an existing semester; otherwise the current semester is used.
func (s *AccessService) Resolve(ctx context.Context, userID, requestedSemester string) (models.TeacherScope, *models.Semester, error) {
	scope := models.TeacherScope{UserID: userID}
	teacher, err := s.teachers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scope, nil, appErrors.Clone(appErrors.ErrNotFound, msgTeacherMissing)
		}
		return scope, nil, appErrors.Internal(err, "failed to load teacher")
	}
	scope.TeacherID = teacher.ID

	semester, err := s.semester(ctx, requestedSemester)
	if err != nil {
		return scope, nil, err
	}
	scope.SemesterID = semester.ID
	return scope, semester, nil
}

func (s *AccessService) semester(ctx context.Context, requested string) (*models.Semester, error) {
	if requested != "" {
		semester, err := s.semesters.FindByID(ctx, requested)
		if err == nil {
			return semester, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load semester")
		}
		s.logger.Debug("requested semester not found, using current", zap.String("semester_id", requested))
	}
	semester, err := s.semesters.FindCurrent(ctx, s.now().In(s.loc))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "No semester has been configured.")
		}
		return nil, appErrors.Internal(err, "failed to resolve current semester")
	}
	return semester, nil
}

// RequireSemester loads a semester named on a form.
func (s *AccessService) RequireSemester(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.semesters.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("Selected semester does not exist.")
		}
		return nil, appErrors.Internal(err, "failed to load semester")
	}
	return semester, nil
}

// Semesters lists every semester for the picker.
func (s *AccessService) Semesters(ctx context.Context) ([]models.Semester, error) {
	list, err := s.semesters.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list semesters")
	}
	return list, nil
}

// Pairs returns the class/subject pairs the teacher is assigned to in semesterID.
func (s *AccessService) Pairs(ctx context.Context, scope models.TeacherScope, semesterID string) ([]models.ClassSubjectPair, error) {
	pairs, err := s.assignments.ListPairs(ctx, scope.TeacherID, semesterID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list teacher assignments")
	}
	return pairs, nil
}

// RequirePairs checks that every requested pair is assigned to the teacher for
// semesterID and returns them with display names filled in.
func (s *AccessService) RequirePairs(ctx context.Context, scope models.TeacherScope, semesterID string, requested []models.ClassSubjectPair) ([]models.ClassSubjectPair, error) {
	if len(requested) == 0 {
		return nil, invalid("Please select at least one class and subject.")
	}
	assigned, err := s.Pairs(ctx, scope, semesterID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.ClassSubjectPair, len(assigned))
	for _, p := range assigned {
		byKey[p.Key()] = p
	}
	out := make([]models.ClassSubjectPair, 0, len(requested))
	for _, p := range requested {
		named, ok := byKey[p.Key()]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "You are not assigned to one or more of the selected classes.")
		}
		out = append(out, named)
	}
	return out, nil
}

// RequirePair checks a single class/subject assignment in the scope's semester.
func (s *AccessService) RequirePair(ctx context.Context, scope models.TeacherScope, classID, subjectID string) error {
	ok, err := s.assignments.HasPair(ctx, scope.TeacherID, scope.SemesterID, classID, subjectID)
	if err != nil {
		return appErrors.Internal(err, "failed to check teacher assignment")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "You are not assigned to this class and subject.")
	}
	return nil
}

// RequireAssessment checks ownership of an assessment. pendingOnly additionally
// requires the assessment to still be pending.
func (s *AccessService) RequireAssessment(ctx context.Context, scope models.TeacherScope, assessmentID string, pendingOnly bool) error {
	ok, err := s.assignments.OwnsAssessment(ctx, scope.TeacherID, scope.SemesterID, assessmentID, pendingOnly)
	if err != nil {
		return appErrors.Internal(err, "failed to check assessment ownership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, msgAssessmentUnavailable)
	}
	return nil
}

// RequireAssessmentPair checks ownership of one class/subject association.
func (s *AccessService) RequireAssessmentPair(ctx context.Context, scope models.TeacherScope, assessmentID, classID, subjectID string, pendingOnly bool) error {
	ok, err := s.assignments.OwnsAssessmentPair(ctx, scope.TeacherID, scope.SemesterID, assessmentID, classID, subjectID, pendingOnly)
	if err != nil {
		return appErrors.Internal(err, "failed to check assessment ownership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, msgNotAuthorized)
	}
	return nil
}

// RequirePendingQuestion checks that the question belongs to a pending assessment
// the teacher owns and returns that assessment's id.
func (s *AccessService) RequirePendingQuestion(ctx context.Context, scope models.TeacherScope, questionID string) (string, error) {
	assessmentID, err := s.assignments.PendingQuestionAssessment(ctx, scope.TeacherID, scope.SemesterID, questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "Question not found, unauthorized, or its assessment is already completed.")
		}
		return "", appErrors.Internal(err, "failed to check question ownership")
	}
	return assessmentID, nil
}

// RequireStudent checks that the student sits in one of the assessment's classes
// the teacher teaches.
func (s *AccessService) RequireStudent(ctx context.Context, scope models.TeacherScope, assessmentID, studentID string) error {
	ok, err := s.assignments.TeachesStudent(ctx, scope.TeacherID, scope.SemesterID, assessmentID, studentID)
	if err != nil {
		return appErrors.Internal(err, "failed to check student access")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "Student not found in your classes for this assessment.")
	}
	return nil
}
