package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

// logStoreStub keeps logs keyed by the (studentID, date) natural key, the
// same uniqueness the real table enforces.
type logStoreStub struct {
	logs map[string]models.DailyLog
}

func newLogStoreStub() *logStoreStub {
	return &logStoreStub{logs: map[string]models.DailyLog{}}
}

func naturalKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (r *logStoreStub) FindExistingIDs(ctx context.Context, teacherID string, date time.Time, studentIDs []string) (map[string]string, error) {
	existing := map[string]string{}
	for _, id := range studentIDs {
		if log, ok := r.logs[naturalKey(id, date)]; ok {
			existing[id] = log.ID
		}
	}
	return existing, nil
}

func (r *logStoreStub) SaveBatch(ctx context.Context, logs []models.DailyLog, existingIDs map[string]string) (int, int, error) {
	created, updated := 0, 0
	for _, log := range logs {
		if id, ok := existingIDs[log.StudentID]; ok {
			log.ID = id
			r.logs[naturalKey(log.StudentID, log.Date)] = log
			updated++
			continue
		}
		log.ID = uuid.NewString()
		r.logs[naturalKey(log.StudentID, log.Date)] = log
		created++
	}
	return created, updated, nil
}

func (r *logStoreStub) ListByStudents(ctx context.Context, teacherID string, studentIDs []string, from, to *time.Time) ([]models.DailyLog, error) {
	var out []models.DailyLog
	for _, log := range r.logs {
		for _, id := range studentIDs {
			if log.StudentID == id {
				out = append(out, log)
			}
		}
	}
	return out, nil
}

func (r *logStoreStub) ListByStudent(ctx context.Context, teacherID, studentID string, from, to *time.Time) ([]models.DailyLog, error) {
	return r.ListByStudents(ctx, teacherID, []string{studentID}, from, to)
}

func (r *logStoreStub) DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	var deleted int64
	for key, log := range r.logs {
		for _, id := range studentIDs {
			if log.StudentID == id {
				delete(r.logs, key)
				deleted++
				break
			}
		}
	}
	return deleted, nil
}

func (r *logStoreStub) DeleteByDateRange(ctx context.Context, teacherID string, from, to time.Time) (int64, error) {
	var deleted int64
	for key, log := range r.logs {
		if !log.Date.Before(from) && !log.Date.After(to) {
			delete(r.logs, key)
			deleted++
		}
	}
	return deleted, nil
}

type rosterStub struct {
	students []models.Student
}

func (r *rosterStub) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error) {
	var out []models.Student
	for _, student := range r.students {
		if student.ClassID == classID {
			out = append(out, student)
		}
	}
	return out, nil
}

type classCheckerStub struct {
	classes map[string]*models.Class
}

func (r *classCheckerStub) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	class, ok := r.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return class, nil
}

func validEntry() models.LogEntry {
	return models.LogEntry{
		Participation: models.ParticipationDetails{Amount: 3, Quality: 4, Listening: 2, Attitude: 3, Initiative: 4},
		Engagement:    models.EngagementDetails{Attendance: true, Preparedness: 1, Focus: 0.5, Respect: 1},
		Comments:      "solid day",
	}
}

func newTestDailyLogService(store *logStoreStub, roster *rosterStub, classes *classCheckerStub) *DailyLogService {
	return NewDailyLogService(DailyLogServiceParams{
		Repo:    store,
		Roster:  roster,
		Classes: classes,
	})
}

func defaultLogFixtures() (*logStoreStub, *rosterStub, *classCheckerStub) {
	store := newLogStoreStub()
	roster := &rosterStub{students: []models.Student{
		{ID: "stu-1", ClassID: "class-1", Name: "Mia"},
		{ID: "stu-2", ClassID: "class-1", Name: "Ben"},
	}}
	classes := &classCheckerStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "7B", LessonsPerWeek: 5},
	}}
	return store, roster, classes
}

func TestSaveDayCreatesThenUpdates(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	req := SaveDayRequest{
		ClassID: "class-1",
		Date:    "2025-03-10",
		Entries: map[string]models.LogEntry{
			"stu-1": validEntry(),
			"stu-2": validEntry(),
		},
	}

	result, err := svc.SaveDay(context.Background(), "teacher-1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	require.Len(t, store.logs, 2)

	firstIDs := map[string]string{}
	for _, log := range store.logs {
		firstIDs[log.StudentID] = log.ID
	}

	// Saving the same buffer again updates in place: still one record per
	// student, under the original ids.
	result, err = svc.SaveDay(context.Background(), "teacher-1", req)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Updated)
	require.Len(t, store.logs, 2)
	for _, log := range store.logs {
		assert.Equal(t, firstIDs[log.StudentID], log.ID)
	}
}

func TestSaveDayRejectsUnenrolledStudent(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	req := SaveDayRequest{
		ClassID: "class-1",
		Date:    "2025-03-10",
		Entries: map[string]models.LogEntry{"stranger": validEntry()},
	}
	_, err := svc.SaveDay(context.Background(), "teacher-1", req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enrolled")
	assert.Empty(t, store.logs)
}

func TestSaveDayRejectsOutOfRangeScores(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	entry := validEntry()
	entry.Participation.Amount = 5
	req := SaveDayRequest{
		ClassID: "class-1",
		Date:    "2025-03-10",
		Entries: map[string]models.LogEntry{"stu-1": entry},
	}
	_, err := svc.SaveDay(context.Background(), "teacher-1", req)
	require.Error(t, err)
	assert.Empty(t, store.logs)

	entry = validEntry()
	entry.Engagement.Preparedness = 0.75
	req.Entries = map[string]models.LogEntry{"stu-1": entry}
	_, err = svc.SaveDay(context.Background(), "teacher-1", req)
	require.Error(t, err)
	assert.Empty(t, store.logs)
}

func TestSaveDayRejectsBadDate(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	req := SaveDayRequest{
		ClassID: "class-1",
		Date:    "10/03/2025",
		Entries: map[string]models.LogEntry{"stu-1": validEntry()},
	}
	_, err := svc.SaveDay(context.Background(), "teacher-1", req)
	require.Error(t, err)
}

func TestSaveDayUnknownClass(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	req := SaveDayRequest{
		ClassID: "missing",
		Date:    "2025-03-10",
		Entries: map[string]models.LogEntry{"stu-1": validEntry()},
	}
	_, err := svc.SaveDay(context.Background(), "teacher-1", req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestGetDayRejectsUnknownRubric(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store.logs[naturalKey("stu-1", date)] = models.DailyLog{
		ID:            "old",
		StudentID:     "stu-1",
		Date:          date,
		RubricVersion: 1,
	}
	svc := newTestDailyLogService(store, roster, classes)

	_, err := svc.GetDay(context.Background(), "teacher-1", "class-1", "2025-03-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rubric")
}

func TestPurgeRangeValidatesWindow(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	_, err := svc.PurgeRange(context.Background(), "teacher-1", "2025-03-20", "2025-03-10")
	require.Error(t, err)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	store.logs[naturalKey("stu-1", date)] = models.DailyLog{
		ID: "x", StudentID: "stu-1", Date: date, RubricVersion: models.RubricVersionCurrent,
	}
	deleted, err := svc.PurgeRange(context.Background(), "teacher-1", "2025-03-10", "2025-03-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Empty(t, store.logs)
}

func TestStudentDayReturnsSingleLog(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	store.logs[naturalKey("stu-1", date)] = models.DailyLog{
		ID: "log-1", StudentID: "stu-1", Date: date, RubricVersion: models.RubricVersionCurrent,
	}

	log, err := svc.StudentDay(context.Background(), "teacher-1", "stu-1", "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, "log-1", log.ID)

	_, err = svc.StudentDay(context.Background(), "teacher-1", "stu-2", "2025-03-12")
	require.Error(t, err)
}

func TestPurgeStudentKeepsOtherStudents(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	store.logs[naturalKey("stu-1", date)] = models.DailyLog{ID: "a", StudentID: "stu-1", Date: date}
	store.logs[naturalKey("stu-2", date)] = models.DailyLog{ID: "b", StudentID: "stu-2", Date: date}

	deleted, err := svc.PurgeStudent(context.Background(), "teacher-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, store.logs, 1)
}

func TestPurgeClassClearsRosterLogs(t *testing.T) {
	store, roster, classes := defaultLogFixtures()
	svc := newTestDailyLogService(store, roster, classes)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	store.logs[naturalKey("stu-1", date)] = models.DailyLog{ID: "a", StudentID: "stu-1", Date: date}
	store.logs[naturalKey("stu-2", date)] = models.DailyLog{ID: "b", StudentID: "stu-2", Date: date}

	deleted, err := svc.PurgeClass(context.Background(), "teacher-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, store.logs)

	_, err = svc.PurgeClass(context.Background(), "teacher-1", "missing")
	require.Error(t, err)
}
