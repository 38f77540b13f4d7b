package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/database"
)

// ErrStaleVersion is returned when an optimistic update matched no row at the
// version the caller loaded.
var ErrStaleVersion = errors.New("stale version")

// invalidTextRepresentation is what postgres raises for a malformed uuid literal.
const invalidTextRepresentation pq.ErrorCode = "22P02"

// isMissingRow reports errors that mean no row can match the given id: no rows,
// or an id that is not a valid uuid at all.
func isMissingRow(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

// loadOptions fetches MCQ options for the given parents keyed by parent id.
// table is mcq_options or question_bank_options; fk its parent column.
func loadOptions(ctx context.Context, q sqlx.QueryerContext, table, fk string, parentIDs []string) (map[string][]models.MCQOption, error) {
	out := make(map[string][]models.MCQOption, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(parentIDs))
	for i, id := range parentIDs {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, %s AS question_id, option_text, is_correct, position FROM %s WHERE %s IN (%s) ORDER BY position ASC`,
		fk, table, fk, database.InClause(1, len(parentIDs)))
	var options []models.MCQOption
	if err := sqlx.SelectContext(ctx, q, &options, query, args...); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	for _, o := range options {
		out[o.QuestionID] = append(out[o.QuestionID], o)
	}
	return out, nil
}
