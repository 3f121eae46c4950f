package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryListFiltersByClass(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "class_id", "name", "external_id", "created_at", "updated_at"}).
		AddRow("stu-1", "teacher-1", "class-1", "Mia", nil, now, now)
	mock.ExpectQuery("FROM students WHERE teacher_id = .+ AND class_id = .+ ORDER BY").
		WithArgs("teacher-1", "class-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students WHERE teacher_id = .+ AND class_id = .+`).
		WithArgs("teacher-1", "class-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), "teacher-1", models.StudentFilter{ClassID: "class-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, students, 1)
	require.Equal(t, "Mia", students[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteWithLogsSingleTransaction(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_logs WHERE student_id = .+ AND teacher_id = .+").
		WithArgs("stu-1", "teacher-1").
		WillReturnResult(sqlmock.NewResult(0, 14))
	mock.ExpectExec("DELETE FROM students WHERE id = .+ AND teacher_id = .+").
		WithArgs("stu-1", "teacher-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteWithLogs(context.Background(), "teacher-1", "stu-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteWithLogsMissingStudent(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_logs WHERE student_id = .+").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM students WHERE id = .+").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteWithLogs(context.Background(), "teacher-1", "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
