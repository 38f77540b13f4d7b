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

// QuestionBankRepository persists teacher-private question templates.
type QuestionBankRepository struct {
	db *sqlx.DB
}

// NewQuestionBankRepository constructs the repository.
func NewQuestionBankRepository(db *sqlx.DB) *QuestionBankRepository {
	return &QuestionBankRepository{db: db}
}

// usage_count follows questions.question_bank_id provenance, not text equality.
const bankColumns = `qb.id, qb.teacher_id, qb.question_text, qb.question_type, qb.max_score, qb.image_id,
       qb.answer_mode, qb.answer_count, qb.multiple_answers_allowed, qb.correct_answer,
       (SELECT COUNT(*) FROM questions q WHERE q.question_bank_id = qb.id) AS usage_count,
       qb.created_at, qb.updated_at`

// ListByTeacher returns every template owned by teacherID, newest first.
func (r *QuestionBankRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.BankQuestion, error) {
	query := `SELECT ` + bankColumns + ` FROM question_bank qb WHERE qb.teacher_id = $1 ORDER BY qb.created_at DESC`
	var items []models.BankQuestion
	if err := r.db.SelectContext(ctx, &items, query, teacherID); err != nil {
		return nil, fmt.Errorf("list question bank: %w", err)
	}
	if err := r.attachOptions(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID returns a template only when owned by teacherID.
func (r *QuestionBankRepository) FindByID(ctx context.Context, teacherID, id string) (*models.BankQuestion, error) {
	query := `SELECT ` + bankColumns + ` FROM question_bank qb WHERE qb.id = $1 AND qb.teacher_id = $2`
	var item models.BankQuestion
	if err := r.db.GetContext(ctx, &item, query, id, teacherID); err != nil {
		if isMissingRow(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find bank question: %w", err)
	}
	list := []models.BankQuestion{item}
	if err := r.attachOptions(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create inserts a template with its options.
func (r *QuestionBankRepository) Create(ctx context.Context, item *models.BankQuestion) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const insert = `INSERT INTO question_bank (id, teacher_id, question_text, question_type, max_score, image_id,
        answer_mode, answer_count, multiple_answers_allowed, correct_answer, created_at, updated_at)
        VALUES (:id, :teacher_id, :question_text, :question_type, :max_score, :image_id,
        :answer_mode, :answer_count, :multiple_answers_allowed, :correct_answer, :created_at, :updated_at)`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insert, item); err != nil {
			return fmt.Errorf("insert bank question: %w", err)
		}
		return replaceOptions(ctx, tx, "question_bank_options", "bank_question_id", item.ID, item.Options)
	})
}

// Update rewrites a template owned by item.TeacherID and replaces its options.
func (r *QuestionBankRepository) Update(ctx context.Context, item *models.BankQuestion) error {
	item.UpdatedAt = time.Now().UTC()
	const update = `UPDATE question_bank SET question_text = :question_text, question_type = :question_type,
        max_score = :max_score, image_id = :image_id, answer_mode = :answer_mode, answer_count = :answer_count,
        multiple_answers_allowed = :multiple_answers_allowed, correct_answer = :correct_answer, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, update, item)
		if err != nil {
			return fmt.Errorf("update bank question: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check updated bank rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return replaceOptions(ctx, tx, "question_bank_options", "bank_question_id", item.ID, item.Options)
	})
}

// Delete removes a template owned by teacherID. Options cascade; questions
// imported from it keep their content and lose the provenance link.
func (r *QuestionBankRepository) Delete(ctx context.Context, teacherID, id string) error {
	const query = `DELETE FROM question_bank WHERE id = $1 AND teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, teacherID)
	if err != nil {
		if isMissingRow(err) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("delete bank question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted bank rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *QuestionBankRepository) attachOptions(ctx context.Context, items []models.BankQuestion) error {
	var ids []string
	for _, it := range items {
		if it.QuestionType == models.QuestionMCQ {
			ids = append(ids, it.ID)
		}
	}
	options, err := loadOptions(ctx, r.db, "question_bank_options", "bank_question_id", ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Options = options[items[i].ID]
	}
	return nil
}
