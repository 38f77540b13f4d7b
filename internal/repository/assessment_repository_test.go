package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
)

func TestAssessmentRepositoryExpireOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assessments a SET status = 'completed'`)).
		WithArgs("teacher-1", "sem-1", "2024-05-02 08:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assessments a SET status = 'completed'`)).
		WithArgs("teacher-1", "sem-1", "2024-05-02 08:00:00").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.ExpireOverdue(context.Background(), "teacher-1", "sem-1", "2024-05-02 08:00:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.ExpireOverdue(context.Background(), "teacher-1", "sem-1", "2024-05-02 08:00:00")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryCreateInsertsPairsInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_classes (assessment_id, class_id, subject_id) VALUES ($1, $2, $3)")).
		WithArgs(sqlmock.AnyArg(), "class-1", "subject-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_classes")).
		WithArgs(sqlmock.AnyArg(), "class-2", "subject-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	a := &models.Assessment{Title: "Quiz 1", AssessmentDate: time.Now(), Status: models.AssessmentPending}
	err := repo.Create(context.Background(), a, []models.ClassSubjectPair{
		{ClassID: "class-1", SubjectID: "subject-1"},
		{ClassID: "class-2", SubjectID: "subject-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 1, a.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryCreateRollsBackOnPairFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO assessment_classes").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Assessment{Title: "Quiz"}, []models.ClassSubjectPair{{ClassID: "c", SubjectID: "s"}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryUpdateStaleVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assessments SET title").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	a := &models.Assessment{ID: "assess-1", Version: 3}
	err := repo.Update(context.Background(), a, nil)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, 3, a.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryUpdateReplacesPairs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assessments SET title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessment_classes WHERE assessment_id = $1")).
		WithArgs("assess-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO assessment_classes").
		WithArgs("assess-1", "class-3", "subject-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	a := &models.Assessment{ID: "assess-1", Version: 2}
	require.NoError(t, repo.Update(context.Background(), a, []models.ClassSubjectPair{{ClassID: "class-3", SubjectID: "subject-1"}}))
	assert.Equal(t, 3, a.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectClassCascade(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_answers WHERE assessment_id = $1")).
		WithArgs("assess-1", "class-1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM results WHERE assessment_id = $1")).
		WithArgs("assess-1", "class-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessment_attempts WHERE assessment_id = $1")).
		WithArgs("assess-1", "class-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessment_classes WHERE assessment_id = $1 AND class_id = $2 AND subject_id = $3")).
		WithArgs("assess-1", "class-1", "subject-1").WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestAssessmentRepositoryDeleteFromClassKeepsOtherPairs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	expectClassCascade(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM assessment_classes WHERE assessment_id = $1")).
		WithArgs("assess-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	deletedAll, err := repo.DeleteFromClass(context.Background(), "assess-1", "class-1", "subject-1")
	require.NoError(t, err)
	assert.False(t, deletedAll)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryDeleteFromLastClassDeletesAssessment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	expectClassCascade(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM assessment_classes")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM questions WHERE assessment_id = $1")).
		WithArgs("assess-1").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessments WHERE id = $1")).
		WithArgs("assess-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deletedAll, err := repo.DeleteFromClass(context.Background(), "assess-1", "class-1", "subject-1")
	require.NoError(t, err)
	assert.True(t, deletedAll)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryDeleteRequiresPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessments WHERE id = $1 AND status = 'pending'")).
		WithArgs("assess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Delete(context.Background(), "assess-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryListForTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	cols := []string{"id", "title", "assessment_date", "start_time", "end_time", "status", "assessment_type_name",
		"use_question_limit", "questions_to_answer", "class_id", "class_name", "subject_id", "subject_name",
		"question_count", "submission_count", "student_count"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tca.teacher_id = $1 AND tca.semester_id = $2 AND a.semester_id = $2")).
		WithArgs("teacher-1", "sem-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("assess-1", "Quiz", time.Now(), "09:00", nil, "pending", "Quiz", false, nil,
				"class-1", "X-1", "subject-1", "Math", 5, 3, 30))

	rows, err := repo.ListForTeacher(context.Background(), "teacher-1", "sem-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].StartTime)
	assert.Equal(t, "09:00", *rows[0].StartTime)
	assert.Nil(t, rows[0].EndTime)
	assert.Equal(t, 30, rows[0].StudentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
