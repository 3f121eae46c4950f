package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, teacherID string, filter models.ClassFilter) ([]models.Class, int, error)
	ListAll(ctx context.Context, teacherID string) ([]models.Class, error)
	FindByID(ctx context.Context, teacherID, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	DeleteWithStudents(ctx context.Context, teacherID, classID string) ([]string, error)
}

type classLogPurger interface {
	DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error)
}

// changeNotifier fans a tenant-level change signal out to watch subscribers.
type changeNotifier interface {
	NotifyChange(ctx context.Context, teacherID string)
}

// ClassUpsertRequest creates or updates a class.
type ClassUpsertRequest struct {
	Name           string `json:"name" validate:"required"`
	LessonsPerWeek int    `json:"lessons_per_week" validate:"required,gt=0"`
}

// ClassService provides class roster use cases.
type ClassService struct {
	repo      classRepository
	logs      classLogPurger
	cache     *CacheService
	notifier  changeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// ClassServiceParams groups constructor dependencies.
type ClassServiceParams struct {
	Repo      classRepository
	Logs      classLogPurger
	Cache     *CacheService
	Notifier  changeNotifier
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(params ClassServiceParams) *ClassService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{
		repo:      params.Repo,
		logs:      params.Logs,
		cache:     params.Cache,
		notifier:  params.Notifier,
		validator: validate,
		logger:    logger,
	}
}

// List returns the teacher's classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, teacherID string, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, teacherID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, teacherID, classID string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, teacherID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a new class.
func (s *ClassService) Create(ctx context.Context, teacherID string, req ClassUpsertRequest) (*models.Class, error) {
	if err := s.validateUpsert(req); err != nil {
		return nil, err
	}
	class := &models.Class{
		TeacherID:      teacherID,
		Name:           strings.TrimSpace(req.Name),
		LessonsPerWeek: req.LessonsPerWeek,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.afterChange(ctx, teacherID)
	return class, nil
}

// Update mutates the class name and lessons-per-week.
func (s *ClassService) Update(ctx context.Context, teacherID, classID string, req ClassUpsertRequest) (*models.Class, error) {
	if err := s.validateUpsert(req); err != nil {
		return nil, err
	}
	class, err := s.Get(ctx, teacherID, classID)
	if err != nil {
		return nil, err
	}
	class.Name = strings.TrimSpace(req.Name)
	class.LessonsPerWeek = req.LessonsPerWeek
	if err := s.repo.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.afterChange(ctx, teacherID)
	return class, nil
}

// Delete removes a class, its roster, and every daily log belonging to that
// roster. The class and students disappear atomically; log cleanup runs
// afterwards in groups, so a crash in between can leave orphaned logs that
// no report will ever read.
func (s *ClassService) Delete(ctx context.Context, teacherID, classID string) error {
	studentIDs, err := s.repo.DeleteWithStudents(ctx, teacherID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}

	deleted, err := s.logs.DeleteByStudents(ctx, teacherID, studentIDs)
	if err != nil {
		s.logger.Error("class deleted but log cleanup failed",
			zap.String("class_id", classID),
			zap.Int("students", len(studentIDs)),
			zap.Int64("logs_deleted", deleted),
			zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "class removed but some logs could not be cleaned up")
	}

	s.logger.Info("class deleted",
		zap.String("class_id", classID),
		zap.Int("students", len(studentIDs)),
		zap.Int64("logs_deleted", deleted))
	s.afterChange(ctx, teacherID)
	return nil
}

func (s *ClassService) validateUpsert(req ClassUpsertRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class name must not be blank")
	}
	return nil
}

func (s *ClassService) afterChange(ctx context.Context, teacherID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "reports:"+teacherID+":*"); err != nil {
			s.logger.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyChange(ctx, teacherID)
	}
}
