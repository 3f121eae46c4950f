package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

func newDailyLogRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func makeStudentIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("stu-%03d", i)
	}
	return ids
}

func TestDailyLogRepositoryFindExistingIDsSingleGroup(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id"}).
		AddRow("log-1", "stu-000").
		AddRow("log-2", "stu-001")
	mock.ExpectQuery("SELECT id, student_id FROM daily_logs WHERE teacher_id = .+ AND date = .+ AND student_id IN").
		WillReturnRows(rows)

	existing, err := repo.FindExistingIDs(context.Background(), "teacher-1", date, makeStudentIDs(2))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"stu-000": "log-1", "stu-001": "log-2"}, existing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositoryFindExistingIDsSplitsLargeRosters(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	// 31 students cross the membership limit, so two queries are issued.
	mock.ExpectQuery("SELECT id, student_id FROM daily_logs WHERE teacher_id = .+ AND student_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id"}).AddRow("log-1", "stu-000"))
	mock.ExpectQuery("SELECT id, student_id FROM daily_logs WHERE teacher_id = .+ AND student_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id"}).AddRow("log-31", "stu-030"))

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	existing, err := repo.FindExistingIDs(context.Background(), "teacher-1", date, makeStudentIDs(31))
	require.NoError(t, err)
	require.Len(t, existing, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositorySaveBatchInsertsAndUpdates(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := []models.DailyLog{
		{TeacherID: "teacher-1", StudentID: "stu-000", Date: date, RubricVersion: models.RubricVersionCurrent},
		{TeacherID: "teacher-1", StudentID: "stu-001", Date: date, RubricVersion: models.RubricVersionCurrent},
	}
	existing := map[string]string{"stu-001": "log-9"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE daily_logs SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, updated, err := repo.SaveBatch(context.Background(), logs, existing)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, 1, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositorySaveBatchRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := []models.DailyLog{
		{TeacherID: "teacher-1", StudentID: "stu-000", Date: date, RubricVersion: models.RubricVersionCurrent},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_logs").WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, _, err := repo.SaveBatch(context.Background(), logs, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositoryDeleteByStudentsChunksTransactions(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	// 60 students split into exactly two delete transactions.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_logs WHERE teacher_id = .+ AND student_id IN").
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_logs WHERE teacher_id = .+ AND student_id IN").
		WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectCommit()

	deleted, err := repo.DeleteByStudents(context.Background(), "teacher-1", makeStudentIDs(60))
	require.NoError(t, err)
	require.Equal(t, int64(20), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositoryDeleteByStudentsEmptyRosterIsNoop(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	deleted, err := repo.DeleteByStudents(context.Background(), "teacher-1", nil)
	require.NoError(t, err)
	require.Zero(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyLogRepositoryListByDateRange(t *testing.T) {
	db, mock, cleanup := newDailyLogRepoMock(t)
	defer cleanup()
	repo := NewDailyLogRepository(db)

	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)
	columns := []string{"id", "teacher_id", "student_id", "date", "rubric_version",
		"participation_amount", "participation_quality", "participation_listening", "participation_attitude", "participation_initiative",
		"engagement_attendance", "engagement_preparedness", "engagement_focus", "engagement_respect",
		"comments", "created_at", "updated_at"}
	rows := sqlmock.NewRows(columns).
		AddRow("log-1", "teacher-1", "stu-000", from, 2, 3.0, 4.0, 2.0, 3.0, 4.0, true, 1.0, 0.5, 1.0, "good day", from, from)
	mock.ExpectQuery("SELECT (.+) FROM daily_logs WHERE teacher_id = .+ AND date >= .+ AND date <= .+").
		WithArgs("teacher-1", from, to).
		WillReturnRows(rows)

	logs, err := repo.ListByDateRange(context.Background(), "teacher-1", from, to)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 3.0, logs[0].Participation.Amount)
	require.True(t, logs[0].Engagement.Attendance)
	require.NoError(t, mock.ExpectationsWereMet())
}
