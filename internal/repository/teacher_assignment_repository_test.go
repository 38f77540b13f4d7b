package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTeacherAssignmentRepositoryListPairs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"class_id", "subject_id", "class_name", "subject_name"}).
		AddRow("class-1", "subject-1", "X IPA 1", "Mathematics").
		AddRow("class-2", "subject-1", "X IPA 2", "Mathematics")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM teacher_class_assignments tca`)).
		WithArgs("teacher-1", "sem-1").
		WillReturnRows(rows)

	pairs, err := repo.ListPairs(context.Background(), "teacher-1", "sem-1")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "X IPA 2 - Mathematics", pairs[1].Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryOwnsAssessment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery(`WHERE a.id = \$1 AND tca.teacher_id = \$2 AND tca.semester_id = \$3 AND a.status = 'pending' LIMIT 1`).
		WithArgs("assess-1", "teacher-1", "sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	owned, err := repo.OwnsAssessment(context.Background(), "teacher-1", "sem-1", "assess-1", true)
	require.NoError(t, err)
	assert.True(t, owned)

	mock.ExpectQuery(`WHERE a.id = \$1 AND tca.teacher_id = \$2 AND tca.semester_id = \$3 LIMIT 1`).
		WithArgs("assess-2", "teacher-1", "sem-1").
		WillReturnError(sql.ErrNoRows)
	owned, err = repo.OwnsAssessment(context.Background(), "teacher-1", "sem-1", "assess-2", false)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryPendingQuestionAssessment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM questions q`)).
		WithArgs("q-1", "teacher-1", "sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("assess-1"))
	id, err := repo.PendingQuestionAssessment(context.Background(), "teacher-1", "sem-1", "q-1")
	require.NoError(t, err)
	assert.Equal(t, "assess-1", id)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM questions q`)).
		WithArgs("q-2", "teacher-1", "sem-1").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.PendingQuestionAssessment(context.Background(), "teacher-1", "sem-1", "q-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryHasPairAndStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_class_assignments WHERE teacher_id = $1 AND semester_id = $2 AND class_id = $3 AND subject_id = $4 LIMIT 1")).
		WithArgs("teacher-1", "sem-1", "class-1", "subject-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err := repo.HasPair(context.Background(), "teacher-1", "sem-1", "class-1", "subject-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM students st`)).
		WithArgs("student-1", "assess-1", "teacher-1", "sem-1").
		WillReturnError(sql.ErrNoRows)
	ok, err = repo.TeachesStudent(context.Background(), "teacher-1", "sem-1", "assess-1", "student-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryMalformedIDIsNotOwned(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)
	badUUID := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	mock.ExpectQuery(`WHERE a.id = \$1 AND tca.teacher_id = \$2 AND tca.semester_id = \$3 LIMIT 1`).
		WithArgs("abc", "teacher-1", "sem-1").
		WillReturnError(badUUID)
	owned, err := repo.OwnsAssessment(context.Background(), "teacher-1", "sem-1", "abc", false)
	require.NoError(t, err)
	assert.False(t, owned)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM questions q`)).
		WithArgs("abc", "teacher-1", "sem-1").
		WillReturnError(badUUID)
	_, err = repo.PendingQuestionAssessment(context.Background(), "teacher-1", "sem-1", "abc")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM students st`)).
		WithArgs("student-1", "assess-1", "teacher-1", "sem-1").
		WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection"})
	_, err = repo.TeachesStudent(context.Background(), "teacher-1", "sem-1", "assess-1", "student-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
