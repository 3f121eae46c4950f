package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/scoring"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
)

// DefaultEngagementBar is the per-lesson engagement bar used for at-risk
// classification when no override is configured. A class's weekly threshold
// is lessonsPerWeek times this bar.
const DefaultEngagementBar = 2.4

type reportLogLister interface {
	ListByStudents(ctx context.Context, teacherID string, studentIDs []string, from, to *time.Time) ([]models.DailyLog, error)
	ListDates(ctx context.Context, teacherID string) ([]time.Time, error)
}

type reportClassReader interface {
	FindByID(ctx context.Context, teacherID, id string) (*models.Class, error)
}

type reportRosterReader interface {
	ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, teacherID, id string) (*models.Student, error)
}

// ReportService derives weekly summaries, class rollups, and at-risk lists
// from stored daily logs. Nothing it produces is persisted.
type ReportService struct {
	logs          reportLogLister
	classes       reportClassReader
	students      reportRosterReader
	cache         *CacheService
	logger        *zap.Logger
	engagementBar float64
	cacheTTL      time.Duration
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Logs          reportLogLister
	Classes       reportClassReader
	Students      reportRosterReader
	Cache         *CacheService
	Logger        *zap.Logger
	EngagementBar float64
	CacheTTL      time.Duration
}

// NewReportService constructs a ReportService with sane defaults.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bar := params.EngagementBar
	if bar <= 0 {
		bar = DefaultEngagementBar
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportService{
		logs:          params.Logs,
		classes:       params.Classes,
		students:      params.Students,
		cache:         params.Cache,
		logger:        logger,
		engagementBar: bar,
		cacheTTL:      ttl,
	}
}

// WeekStartOf normalizes any instant to the Monday 00:00:00 UTC that opens
// its week.
func WeekStartOf(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

// weekWindow returns the inclusive bounds of the week opened by start: from
// Monday midnight through the last nanosecond of Sunday.
func weekWindow(start time.Time) (time.Time, time.Time) {
	from := WeekStartOf(start)
	to := from.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return from, to
}

// AtRiskThreshold scales the per-lesson bar by the class's weekly lesson
// count.
func (s *ReportService) AtRiskThreshold(lessonsPerWeek int) float64 {
	return float64(lessonsPerWeek) * s.engagementBar
}

// StudentWeekly computes one student's summary for the week containing
// weekStart.
func (s *ReportService) StudentWeekly(ctx context.Context, teacherID, studentID string, weekStart time.Time) (*models.WeeklySummary, error) {
	student, err := s.students.FindByID(ctx, teacherID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	class, err := s.classes.FindByID(ctx, teacherID, student.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	from, to := weekWindow(weekStart)
	cacheKey := fmt.Sprintf("reports:%s:student:%s:%s", teacherID, studentID, from.Format(DateLayout))
	var cached models.WeeklySummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	logs, err := s.logs.ListByStudents(ctx, teacherID, []string{studentID}, &from, &to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load logs")
	}
	if err := checkRubric(logs); err != nil {
		return nil, err
	}

	summary := buildWeeklySummary(student, class, from, logs, s.AtRiskThreshold(class.LessonsPerWeek))
	if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache weekly summary", zap.Error(err))
	}
	return &summary, nil
}

// ClassWeekly computes the class rollup for the week containing weekStart:
// every enrolled student aggregated, partitioned into at-risk, passing, and
// no-data groups.
func (s *ReportService) ClassWeekly(ctx context.Context, teacherID, classID string, weekStart time.Time) (*models.ClassWeeklySummary, error) {
	class, err := s.classes.FindByID(ctx, teacherID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	from, to := weekWindow(weekStart)
	cacheKey := fmt.Sprintf("reports:%s:class:%s:%s", teacherID, classID, from.Format(DateLayout))
	var cached models.ClassWeeklySummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	roster, err := s.students.ListByClass(ctx, teacherID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	studentIDs := make([]string, 0, len(roster))
	for _, student := range roster {
		studentIDs = append(studentIDs, student.ID)
	}

	logs, err := s.logs.ListByStudents(ctx, teacherID, studentIDs, &from, &to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load logs")
	}
	if err := checkRubric(logs); err != nil {
		return nil, err
	}

	byStudent := make(map[string][]models.DailyLog, len(roster))
	for _, log := range logs {
		byStudent[log.StudentID] = append(byStudent[log.StudentID], log)
	}

	threshold := s.AtRiskThreshold(class.LessonsPerWeek)
	rollup := models.ClassWeeklySummary{
		ClassID:        class.ID,
		ClassName:      class.Name,
		WeekStart:      from,
		LessonsPerWeek: class.LessonsPerWeek,
		TotalStudents:  len(roster),
		AtRiskStudents: []models.AtRiskStudent{},
		NoDataStudents: []models.NoDataStudent{},
	}
	for _, student := range roster {
		studentLogs := byStudent[student.ID]
		if len(studentLogs) == 0 {
			// No log in the window says nothing about risk; surfaced apart
			// so the teacher can follow up.
			rollup.NoDataStudents = append(rollup.NoDataStudents, models.NoDataStudent{
				ID:   student.ID,
				Name: student.Name,
			})
			continue
		}
		avg, total := aggregateScores(studentLogs)
		if total < threshold {
			rollup.AtRiskStudents = append(rollup.AtRiskStudents, models.AtRiskStudent{
				ID:               student.ID,
				Name:             student.Name,
				TotalEngagement:  total,
				AvgParticipation: avg,
			})
		}
	}
	rollup.AtRiskCount = len(rollup.AtRiskStudents)
	rollup.PassingCount = rollup.TotalStudents - rollup.AtRiskCount

	if err := s.cache.Set(ctx, cacheKey, rollup, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache class rollup", zap.Error(err))
	}
	return &rollup, nil
}

// AvailableWeeks returns the Monday of every week that has at least one log,
// newest first. The current week is always present so the dashboard has a
// default selection even before anything is logged.
func (s *ReportService) AvailableWeeks(ctx context.Context, teacherID string) ([]time.Time, error) {
	dates, err := s.logs.ListDates(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load log dates")
	}
	current := WeekStartOf(time.Now().UTC())
	seen := map[time.Time]struct{}{current: {}}
	weeks := []time.Time{current}
	for _, date := range dates {
		week := WeekStartOf(date)
		if _, ok := seen[week]; ok {
			continue
		}
		seen[week] = struct{}{}
		weeks = append(weeks, week)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].After(weeks[j]) })
	return weeks, nil
}

// buildWeeklySummary folds one student's logs for one week into a summary.
// Average participation over zero logs is zero, never a division error.
func buildWeeklySummary(student *models.Student, class *models.Class, weekStart time.Time, logs []models.DailyLog, threshold float64) models.WeeklySummary {
	avg, total := aggregateScores(logs)
	summary := models.WeeklySummary{
		StudentID:        student.ID,
		StudentName:      student.Name,
		WeekStart:        weekStart,
		AvgParticipation: avg,
		TotalEngagement:  total,
		LessonsPerWeek:   class.LessonsPerWeek,
		Warnings:         []string{},
		Logs:             logs,
	}
	if len(logs) > 0 && avg < scoring.ParticipationWarningFloor {
		summary.Warnings = append(summary.Warnings, "average participation is below the expected floor")
	}
	if len(logs) > 0 && total < threshold {
		summary.Warnings = append(summary.Warnings, "weekly engagement is below the at-risk threshold")
	}
	if len(logs) < class.LessonsPerWeek {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("only %d of %d lessons logged this week", len(logs), class.LessonsPerWeek))
	}
	return summary
}

func aggregateScores(logs []models.DailyLog) (avgParticipation, totalEngagement float64) {
	if len(logs) == 0 {
		return 0, 0
	}
	var participationSum float64
	for _, log := range logs {
		participationSum += scoring.ParticipationScore(log.Participation)
		totalEngagement += scoring.EngagementScore(log.Engagement)
	}
	return participationSum / float64(len(logs)), totalEngagement
}

func checkRubric(logs []models.DailyLog) error {
	for _, log := range logs {
		if log.RubricVersion != models.RubricVersionCurrent {
			return appErrors.Clone(appErrors.ErrUnknownRubric,
				fmt.Sprintf("log %s uses rubric version %d", log.ID, log.RubricVersion))
		}
	}
	return nil
}
