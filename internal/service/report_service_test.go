package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

type reportLogStub struct {
	logs []models.DailyLog
}

func (r *reportLogStub) ListByStudents(ctx context.Context, teacherID string, studentIDs []string, from, to *time.Time) ([]models.DailyLog, error) {
	allowed := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		allowed[id] = struct{}{}
	}
	var out []models.DailyLog
	for _, log := range r.logs {
		if _, ok := allowed[log.StudentID]; !ok {
			continue
		}
		if from != nil && log.Date.Before(*from) {
			continue
		}
		if to != nil && log.Date.After(*to) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (r *reportLogStub) ListDates(ctx context.Context, teacherID string) ([]time.Time, error) {
	var dates []time.Time
	for _, log := range r.logs {
		dates = append(dates, log.Date)
	}
	return dates, nil
}

type reportClassStub struct {
	classes map[string]*models.Class
}

func (r *reportClassStub) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	class, ok := r.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return class, nil
}

type reportRosterStub struct {
	students []models.Student
}

func (r *reportRosterStub) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error) {
	var out []models.Student
	for _, student := range r.students {
		if student.ClassID == classID {
			out = append(out, student)
		}
	}
	return out, nil
}

func (r *reportRosterStub) FindByID(ctx context.Context, teacherID, id string) (*models.Student, error) {
	for i := range r.students {
		if r.students[i].ID == id {
			return &r.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

// logOn fabricates a current-rubric log with the given raw scores. The
// participation sub-scores are spread so they sum to the wanted total; the
// engagement fields are arranged to sum to the wanted score.
func logOn(studentID string, date time.Time, participationTotal, engagementTotal float64) models.DailyLog {
	log := models.DailyLog{
		ID:            studentID + "-" + date.Format("20060102"),
		TeacherID:     "teacher-1",
		StudentID:     studentID,
		Date:          date,
		RubricVersion: models.RubricVersionCurrent,
	}
	// Five sub-scores of up to 4 points each.
	remaining := participationTotal
	fields := []*float64{
		&log.Participation.Amount,
		&log.Participation.Quality,
		&log.Participation.Listening,
		&log.Participation.Attitude,
		&log.Participation.Initiative,
	}
	for _, field := range fields {
		v := remaining
		if v > 4 {
			v = 4
		}
		*field = v
		remaining -= v
	}
	// Attendance contributes 2; the rest fills up from preparedness, focus,
	// and respect.
	if engagementTotal >= 2 {
		log.Engagement.Attendance = true
		engagementTotal -= 2
	}
	steps := []*float64{&log.Engagement.Preparedness, &log.Engagement.Focus, &log.Engagement.Respect}
	for _, field := range steps {
		v := engagementTotal
		if v > 1 {
			v = 1
		}
		*field = v
		engagementTotal -= v
	}
	return log
}

func newTestReportService(logs *reportLogStub, classes *reportClassStub, roster *reportRosterStub) *ReportService {
	return NewReportService(ReportServiceParams{
		Logs:     logs,
		Classes:  classes,
		Students: roster,
	})
}

func TestWeekStartOfNormalizesToMonday(t *testing.T) {
	// 2025-03-12 is a Wednesday.
	wednesday := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), WeekStartOf(wednesday))

	// Sunday folds back to the previous Monday.
	sunday := time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), WeekStartOf(sunday))

	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, WeekStartOf(monday))
}

func TestStudentWeeklyPassingScenario(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &reportLogStub{logs: []models.DailyLog{
		logOn("s1", week, 18, 5),
		logOn("s1", week.AddDate(0, 0, 1), 15, 4),
		logOn("s1", week.AddDate(0, 0, 2), 16, 5),
		logOn("s1", week.AddDate(0, 0, 3), 14, 3),
	}}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	summary, err := svc.StudentWeekly(context.Background(), "teacher-1", "s1", week)
	require.NoError(t, err)
	assert.InDelta(t, 15.75, summary.AvgParticipation, 1e-9)
	assert.InDelta(t, 17.0, summary.TotalEngagement, 1e-9)
	assert.Equal(t, 5, summary.LessonsPerWeek)
	assert.Len(t, summary.Logs, 4)
	assert.Contains(t, summary.Warnings, "only 4 of 5 lessons logged this week")
	assert.NotContains(t, summary.Warnings, "weekly engagement is below the at-risk threshold")

	rollup, err := svc.ClassWeekly(context.Background(), "teacher-1", "c1", week)
	require.NoError(t, err)
	// Threshold is 5 * 2.4 = 12; 17 >= 12 means passing.
	assert.Empty(t, rollup.AtRiskStudents)
	assert.Equal(t, 1, rollup.PassingCount)
}

func TestClassWeeklyAtRiskScenario(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &reportLogStub{logs: []models.DailyLog{
		logOn("s2", week, 8, 2),
		logOn("s2", week.AddDate(0, 0, 1), 10, 0),
	}}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s2", ClassID: "c1", Name: "S2"},
	}}
	svc := newTestReportService(logs, classes, roster)

	rollup, err := svc.ClassWeekly(context.Background(), "teacher-1", "c1", week)
	require.NoError(t, err)
	require.Len(t, rollup.AtRiskStudents, 1)
	atRisk := rollup.AtRiskStudents[0]
	assert.Equal(t, "s2", atRisk.ID)
	assert.InDelta(t, 2.0, atRisk.TotalEngagement, 1e-9)
	// Average is computed only over the two logged days.
	assert.InDelta(t, 9.0, atRisk.AvgParticipation, 1e-9)
	assert.Equal(t, 1, rollup.AtRiskCount)
	assert.Equal(t, 0, rollup.PassingCount)
}

func TestClassWeeklyThresholdEqualityIsNotAtRisk(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	// lessonsPerWeek 2 means threshold 4.8; engagement exactly 4.8 passes.
	logs := &reportLogStub{logs: []models.DailyLog{
		logOn("s1", week, 10, 2.5),
		logOn("s1", week.AddDate(0, 0, 1), 10, 2.3),
	}}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 2},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	rollup, err := svc.ClassWeekly(context.Background(), "teacher-1", "c1", week)
	require.NoError(t, err)
	assert.Empty(t, rollup.AtRiskStudents)
}

func TestClassWeeklyZeroLogStudentsAreNoData(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &reportLogStub{}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	rollup, err := svc.ClassWeekly(context.Background(), "teacher-1", "c1", week)
	require.NoError(t, err)
	assert.Empty(t, rollup.AtRiskStudents)
	require.Len(t, rollup.NoDataStudents, 1)
	assert.Equal(t, "s1", rollup.NoDataStudents[0].ID)
	// Passing is computed over all enrolled students.
	assert.Equal(t, 1, rollup.PassingCount)
}

func TestStudentWeeklyWindowBoundaries(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	inside := logOn("s1", week, 10, 3)
	lastMoment := logOn("s1", week.AddDate(0, 0, 7).Add(-time.Millisecond), 10, 3)
	justAfter := logOn("s1", week.AddDate(0, 0, 7), 20, 5)
	logs := &reportLogStub{logs: []models.DailyLog{inside, lastMoment, justAfter}}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	summary, err := svc.StudentWeekly(context.Background(), "teacher-1", "s1", week)
	require.NoError(t, err)
	assert.Len(t, summary.Logs, 2)
	assert.InDelta(t, 6.0, summary.TotalEngagement, 1e-9)
}

func TestStudentWeeklyNoLogsAveragesToZero(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &reportLogStub{}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	summary, err := svc.StudentWeekly(context.Background(), "teacher-1", "s1", week)
	require.NoError(t, err)
	assert.Zero(t, summary.AvgParticipation)
	assert.Zero(t, summary.TotalEngagement)
}

func TestStudentWeeklyRejectsUnknownRubric(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	stale := logOn("s1", week, 10, 3)
	stale.RubricVersion = 1
	logs := &reportLogStub{logs: []models.DailyLog{stale}}
	classes := &reportClassStub{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "C1", LessonsPerWeek: 5},
	}}
	roster := &reportRosterStub{students: []models.Student{
		{ID: "s1", ClassID: "c1", Name: "S1"},
	}}
	svc := newTestReportService(logs, classes, roster)

	_, err := svc.StudentWeekly(context.Background(), "teacher-1", "s1", week)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rubric")
}

func TestAvailableWeeksDeduplicates(t *testing.T) {
	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &reportLogStub{logs: []models.DailyLog{
		logOn("s1", week, 10, 3),
		logOn("s1", week.AddDate(0, 0, 2), 10, 3),
		logOn("s1", week.AddDate(0, 0, 9), 10, 3),
	}}
	svc := newTestReportService(logs, &reportClassStub{}, &reportRosterStub{})

	weeks, err := svc.AvailableWeeks(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, weeks, 3)
	assert.Equal(t, WeekStartOf(time.Now().UTC()), weeks[0])
	assert.Equal(t, week.AddDate(0, 0, 7), weeks[1])
	assert.Equal(t, week, weeks[2])
}

func TestAvailableWeeksAlwaysContainsCurrentWeek(t *testing.T) {
	svc := newTestReportService(&reportLogStub{}, &reportClassStub{}, &reportRosterStub{})

	weeks, err := svc.AvailableWeeks(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, WeekStartOf(time.Now().UTC()), weeks[0])
}
