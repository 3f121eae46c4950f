package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
)

type dailyLogRepository interface {
	FindExistingIDs(ctx context.Context, teacherID string, date time.Time, studentIDs []string) (map[string]string, error)
	SaveBatch(ctx context.Context, logs []models.DailyLog, existingIDs map[string]string) (int, int, error)
	ListByStudents(ctx context.Context, teacherID string, studentIDs []string, from, to *time.Time) ([]models.DailyLog, error)
	ListByStudent(ctx context.Context, teacherID, studentID string, from, to *time.Time) ([]models.DailyLog, error)
	DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error)
	DeleteByDateRange(ctx context.Context, teacherID string, from, to time.Time) (int64, error)
}

type logClassRoster interface {
	ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error)
}

// DateLayout is the wire format for log dates.
const DateLayout = "2006-01-02"

// SaveDayRequest is one save operation: the whole edit buffer for one class
// on one date.
type SaveDayRequest struct {
	ClassID string                     `json:"class_id" validate:"required"`
	Date    string                     `json:"date" validate:"required"`
	Entries map[string]models.LogEntry `json:"entries" validate:"required"`
}

// SaveDayResult reports what a save wrote.
type SaveDayResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// DailyLogService provides daily rubric logging use cases.
type DailyLogService struct {
	repo      dailyLogRepository
	roster    logClassRoster
	classes   studentClassChecker
	cache     *CacheService
	metrics   *MetricsService
	notifier  changeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// DailyLogServiceParams groups constructor dependencies.
type DailyLogServiceParams struct {
	Repo      dailyLogRepository
	Roster    logClassRoster
	Classes   studentClassChecker
	Cache     *CacheService
	Metrics   *MetricsService
	Notifier  changeNotifier
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewDailyLogService constructs a DailyLogService.
func NewDailyLogService(params DailyLogServiceParams) *DailyLogService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &DailyLogService{
		repo:      params.Repo,
		roster:    params.Roster,
		classes:   params.Classes,
		cache:     params.Cache,
		metrics:   params.Metrics,
		notifier:  params.Notifier,
		validator: validate,
		logger:    logger,
	}
}

// SaveDay persists one date's edit buffer for a class. Students that already
// have a log on that date are updated under their original log id; the rest
// get fresh ids. The whole buffer lands in one transaction, so a re-send of
// the same buffer after a failure writes the same outcome.
func (s *DailyLogService) SaveDay(ctx context.Context, teacherID string, req SaveDayRequest) (*SaveDayResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save payload")
	}
	if len(req.Entries) == 0 {
		return &SaveDayResult{}, nil
	}

	date, err := time.ParseInLocation(DateLayout, req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	if _, err := s.classes.FindByID(ctx, teacherID, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class")
	}

	roster, err := s.roster.ListByClass(ctx, teacherID, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, student := range roster {
		enrolled[student.ID] = struct{}{}
	}

	logs := make([]models.DailyLog, 0, len(req.Entries))
	studentIDs := make([]string, 0, len(req.Entries))
	for _, student := range roster {
		entry, ok := req.Entries[student.ID]
		if !ok {
			continue
		}
		if err := validateEntry(entry); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid entry for student %s: %v", student.ID, err))
		}
		logs = append(logs, models.DailyLog{
			TeacherID:     teacherID,
			StudentID:     student.ID,
			Date:          date,
			RubricVersion: models.RubricVersionCurrent,
			Participation: entry.Participation,
			Engagement:    entry.Engagement,
			Comments:      entry.Comments,
		})
		studentIDs = append(studentIDs, student.ID)
	}
	for studentID := range req.Entries {
		if _, ok := enrolled[studentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in this class", studentID))
		}
	}

	existing, err := s.repo.FindExistingIDs(ctx, teacherID, date, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve existing logs")
	}

	created, updated, err := s.repo.SaveBatch(ctx, logs, existing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save logs")
	}

	if s.metrics != nil {
		s.metrics.RecordSaveBatch(created, updated)
	}
	s.logger.Info("daily logs saved",
		zap.String("class_id", req.ClassID),
		zap.String("date", req.Date),
		zap.Int("created", created),
		zap.Int("updated", updated))
	s.afterChange(ctx, teacherID)
	return &SaveDayResult{Created: created, Updated: updated}, nil
}

// GetDay loads the class roster's logs for one date, keyed by student id.
// Students without a log on that date are simply absent from the map.
func (s *DailyLogService) GetDay(ctx context.Context, teacherID, classID, rawDate string) (map[string]models.DailyLog, error) {
	date, err := time.ParseInLocation(DateLayout, rawDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}
	roster, err := s.roster.ListByClass(ctx, teacherID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	studentIDs := make([]string, 0, len(roster))
	for _, student := range roster {
		studentIDs = append(studentIDs, student.ID)
	}

	logs, err := s.repo.ListByStudents(ctx, teacherID, studentIDs, &date, &date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load logs")
	}

	byStudent := make(map[string]models.DailyLog, len(logs))
	for _, log := range logs {
		if log.RubricVersion != models.RubricVersionCurrent {
			return nil, appErrors.Clone(appErrors.ErrUnknownRubric,
				fmt.Sprintf("log %s uses rubric version %d", log.ID, log.RubricVersion))
		}
		byStudent[log.StudentID] = log
	}
	return byStudent, nil
}

// ListForStudent returns one student's history, newest first.
func (s *DailyLogService) ListForStudent(ctx context.Context, teacherID, studentID string, filter models.DailyLogFilter) ([]models.DailyLog, error) {
	logs, err := s.repo.ListByStudent(ctx, teacherID, studentID, filter.DateFrom, filter.DateTo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student logs")
	}
	for _, log := range logs {
		if log.RubricVersion != models.RubricVersionCurrent {
			return nil, appErrors.Clone(appErrors.ErrUnknownRubric,
				fmt.Sprintf("log %s uses rubric version %d", log.ID, log.RubricVersion))
		}
	}
	return logs, nil
}

// StudentDay returns one student's log for one date, or a not-found error
// when nothing was recorded.
func (s *DailyLogService) StudentDay(ctx context.Context, teacherID, studentID, rawDate string) (*models.DailyLog, error) {
	date, err := time.ParseInLocation(DateLayout, rawDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}
	logs, err := s.repo.ListByStudent(ctx, teacherID, studentID, &date, &date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student log")
	}
	if len(logs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no log recorded for this student and date")
	}
	log := logs[0]
	if log.RubricVersion != models.RubricVersionCurrent {
		return nil, appErrors.Clone(appErrors.ErrUnknownRubric,
			fmt.Sprintf("log %s uses rubric version %d", log.ID, log.RubricVersion))
	}
	return &log, nil
}

// PurgeStudent bulk-deletes every log for one student. The student record
// itself is untouched.
func (s *DailyLogService) PurgeStudent(ctx context.Context, teacherID, studentID string) (int64, error) {
	deleted, err := s.repo.DeleteByStudents(ctx, teacherID, []string{studentID})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge student logs")
	}
	s.logger.Info("student logs purged",
		zap.String("student_id", studentID),
		zap.Int64("deleted", deleted))
	s.afterChange(ctx, teacherID)
	return deleted, nil
}

// PurgeClass bulk-deletes every log belonging to a class's roster. Class and
// students survive; only the logged history goes.
func (s *DailyLogService) PurgeClass(ctx context.Context, teacherID, classID string) (int64, error) {
	if _, err := s.classes.FindByID(ctx, teacherID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	roster, err := s.roster.ListByClass(ctx, teacherID, classID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	studentIDs := make([]string, 0, len(roster))
	for _, student := range roster {
		studentIDs = append(studentIDs, student.ID)
	}

	deleted, err := s.repo.DeleteByStudents(ctx, teacherID, studentIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge class logs")
	}
	s.logger.Info("class logs purged",
		zap.String("class_id", classID),
		zap.Int("students", len(studentIDs)),
		zap.Int64("deleted", deleted))
	s.afterChange(ctx, teacherID)
	return deleted, nil
}

// PurgeRange bulk-deletes every log in the window and returns the count.
func (s *DailyLogService) PurgeRange(ctx context.Context, teacherID, rawFrom, rawTo string) (int64, error) {
	from, err := time.ParseInLocation(DateLayout, rawFrom, time.UTC)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(DateLayout, rawTo, time.UTC)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
	}
	if to.Before(from) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "to must not precede from")
	}

	deleted, err := s.repo.DeleteByDateRange(ctx, teacherID, from, to)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge logs")
	}
	s.logger.Info("daily logs purged",
		zap.String("from", rawFrom),
		zap.String("to", rawTo),
		zap.Int64("deleted", deleted))
	s.afterChange(ctx, teacherID)
	return deleted, nil
}

func (s *DailyLogService) afterChange(ctx context.Context, teacherID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "reports:"+teacherID+":*"); err != nil {
			s.logger.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyChange(ctx, teacherID)
	}
}

func validateEntry(entry models.LogEntry) error {
	p := entry.Participation
	for name, v := range map[string]float64{
		"amount":     p.Amount,
		"quality":    p.Quality,
		"listening":  p.Listening,
		"attitude":   p.Attitude,
		"initiative": p.Initiative,
	} {
		if v < 0 || v > 4 {
			return fmt.Errorf("participation %s must be between 0 and 4", name)
		}
	}
	e := entry.Engagement
	if !isHalfStep(e.Preparedness) {
		return fmt.Errorf("preparedness must be 0, 0.5, or 1")
	}
	if !isHalfStep(e.Focus) {
		return fmt.Errorf("focus must be 0, 0.5, or 1")
	}
	if e.Respect != 0 && e.Respect != 1 {
		return fmt.Errorf("respect must be 0 or 1")
	}
	return nil
}

func isHalfStep(v float64) bool {
	return v == 0 || v == 0.5 || v == 1
}
