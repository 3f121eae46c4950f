package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

func newClassRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newClassRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "name", "lessons_per_week", "created_at", "updated_at"}).
		AddRow("class-1", "teacher-1", "7B Science", 3, now, now)
	mock.ExpectQuery("SELECT id, teacher_id, name, lessons_per_week, created_at, updated_at FROM classes WHERE teacher_id = .+ ORDER BY").
		WithArgs("teacher-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM classes WHERE teacher_id = .+`).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), "teacher-1", models.ClassFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, classes, 1)
	require.Equal(t, 3, classes[0].LessonsPerWeek)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryFindByIDScopesTeacher(t *testing.T) {
	db, mock, cleanup := newClassRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE id = $1 AND teacher_id = $2")).
		WithArgs("class-1", "other-teacher").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "other-teacher", "class-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDeleteWithStudentsReturnsRoster(t *testing.T) {
	db, mock, cleanup := newClassRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE class_id = .+ AND teacher_id = .+").
		WithArgs("class-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1").AddRow("stu-2"))
	mock.ExpectExec("DELETE FROM students WHERE class_id = .+ AND teacher_id = .+").
		WithArgs("class-1", "teacher-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM classes WHERE id = .+ AND teacher_id = .+").
		WithArgs("class-1", "teacher-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	studentIDs, err := repo.DeleteWithStudents(context.Background(), "teacher-1", "class-1")
	require.NoError(t, err)
	require.Equal(t, []string{"stu-1", "stu-2"}, studentIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDeleteWithStudentsRollsBack(t *testing.T) {
	db, mock, cleanup := newClassRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE class_id = .+").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectExec("DELETE FROM students WHERE class_id = .+").
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, err := repo.DeleteWithStudents(context.Background(), "teacher-1", "class-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
