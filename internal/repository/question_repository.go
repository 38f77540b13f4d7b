package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/database"
)

// QuestionRepository persists assessment questions and their MCQ options.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, assessment_id, question_bank_id, question_text, question_type, max_score, image_id,
       answer_mode, answer_count, multiple_answers_allowed, correct_answer, version, created_at, updated_at`

// ListByAssessment returns the questions of an assessment with options attached.
func (r *QuestionRepository) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE assessment_id = $1 ORDER BY created_at ASC, id ASC`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if err := r.attachOptions(ctx, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// FindByID returns a question with its options.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	var question models.Question
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		if isMissingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find question: %w", err)
	}
	list := []models.Question{question}
	if err := r.attachOptions(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create inserts the question and its options in one transaction.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	question.CreatedAt = now
	question.UpdatedAt = now
	question.Version = 1

	const insert = `INSERT INTO questions (id, assessment_id, question_bank_id, question_text, question_type, max_score, image_id,
        answer_mode, answer_count, multiple_answers_allowed, correct_answer, version, created_at, updated_at)
        VALUES (:id, :assessment_id, :question_bank_id, :question_text, :question_type, :max_score, :image_id,
        :answer_mode, :answer_count, :multiple_answers_allowed, :correct_answer, :version, :created_at, :updated_at)`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insert, question); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return replaceOptions(ctx, tx, "mcq_options", "question_id", question.ID, question.Options)
	})
}

// Update rewrites the question at question.Version and replaces its option set.
func (r *QuestionRepository) Update(ctx context.Context, question *models.Question) error {
	question.UpdatedAt = time.Now().UTC()
	const update = `UPDATE questions SET question_text = :question_text, question_type = :question_type, max_score = :max_score,
        image_id = :image_id, answer_mode = :answer_mode, answer_count = :answer_count,
        multiple_answers_allowed = :multiple_answers_allowed, correct_answer = :correct_answer,
        version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, update, question)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check updated question rows: %w", err)
		}
		if affected == 0 {
			return ErrStaleVersion
		}
		return replaceOptions(ctx, tx, "mcq_options", "question_id", question.ID, question.Options)
	})
	if err != nil {
		return err
	}
	question.Version++
	return nil
}

// CountAnswers returns how many student answers reference the question.
func (r *QuestionRepository) CountAnswers(ctx context.Context, questionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_answers WHERE question_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, questionID); err != nil {
		return 0, fmt.Errorf("count question answers: %w", err)
	}
	return count, nil
}

// Delete removes the question with its options; withAnswers also removes the
// student answers pointing at it.
func (r *QuestionRepository) Delete(ctx context.Context, questionID string, withAnswers bool) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if withAnswers {
			if _, err := tx.ExecContext(ctx, `DELETE FROM student_answers WHERE question_id = $1`, questionID); err != nil {
				return fmt.Errorf("delete question answers: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM mcq_options WHERE question_id = $1`, questionID); err != nil {
			return fmt.Errorf("delete question options: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check deleted question rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (r *QuestionRepository) attachOptions(ctx context.Context, questions []models.Question) error {
	var ids []string
	for _, q := range questions {
		if q.QuestionType == models.QuestionMCQ {
			ids = append(ids, q.ID)
		}
	}
	options, err := loadOptions(ctx, r.db, "mcq_options", "question_id", ids)
	if err != nil {
		return err
	}
	for i := range questions {
		questions[i].Options = options[questions[i].ID]
	}
	return nil
}

// replaceOptions deletes every option of parentID and inserts opts in order.
func replaceOptions(ctx context.Context, tx *sqlx.Tx, table, fk, parentID string, opts []models.MCQOption) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, fk), parentID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (id, %s, option_text, is_correct, position) VALUES ($1, $2, $3, $4, $5)`, table, fk)
	for i := range opts {
		opts[i].ID = uuid.NewString()
		opts[i].QuestionID = parentID
		opts[i].Position = i
		if _, err := tx.ExecContext(ctx, insert, opts[i].ID, parentID, opts[i].OptionText, opts[i].IsCorrect, i); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}
