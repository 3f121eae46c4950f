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

type studentRepository interface {
	List(ctx context.Context, teacherID string, filter models.StudentFilter) ([]models.Student, int, error)
	ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, teacherID, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	DeleteWithLogs(ctx context.Context, teacherID, studentID string) error
}

type studentClassChecker interface {
	FindByID(ctx context.Context, teacherID, id string) (*models.Class, error)
}

// StudentUpsertRequest creates or updates a student.
type StudentUpsertRequest struct {
	Name       string  `json:"name" validate:"required"`
	ClassID    string  `json:"class_id" validate:"required"`
	ExternalID *string `json:"external_id"`
}

// StudentService provides roster use cases for individual students.
type StudentService struct {
	repo      studentRepository
	classes   studentClassChecker
	cache     *CacheService
	notifier  changeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Repo      studentRepository
	Classes   studentClassChecker
	Cache     *CacheService
	Notifier  changeNotifier
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(params StudentServiceParams) *StudentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{
		repo:      params.Repo,
		classes:   params.Classes,
		cache:     params.Cache,
		notifier:  params.Notifier,
		validator: validate,
		logger:    logger,
	}
}

// List returns the teacher's students with pagination metadata.
func (s *StudentService) List(ctx context.Context, teacherID string, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, teacherID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, teacherID, studentID string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, teacherID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create enrolls a new student into one of the teacher's classes.
func (s *StudentService) Create(ctx context.Context, teacherID string, req StudentUpsertRequest) (*models.Student, error) {
	if err := s.validateUpsert(ctx, teacherID, req); err != nil {
		return nil, err
	}
	student := &models.Student{
		TeacherID:  teacherID,
		ClassID:    req.ClassID,
		Name:       strings.TrimSpace(req.Name),
		ExternalID: req.ExternalID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.afterChange(ctx, teacherID)
	return student, nil
}

// Update mutates a student's name, class, and external id.
func (s *StudentService) Update(ctx context.Context, teacherID, studentID string, req StudentUpsertRequest) (*models.Student, error) {
	if err := s.validateUpsert(ctx, teacherID, req); err != nil {
		return nil, err
	}
	student, err := s.Get(ctx, teacherID, studentID)
	if err != nil {
		return nil, err
	}
	student.Name = strings.TrimSpace(req.Name)
	student.ClassID = req.ClassID
	student.ExternalID = req.ExternalID
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.afterChange(ctx, teacherID)
	return student, nil
}

// Delete removes a student together with every daily log recorded for them.
// Both disappear in the same transaction.
func (s *StudentService) Delete(ctx context.Context, teacherID, studentID string) error {
	if err := s.repo.DeleteWithLogs(ctx, teacherID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", studentID))
	s.afterChange(ctx, teacherID)
	return nil
}

func (s *StudentService) validateUpsert(ctx context.Context, teacherID string, req StudentUpsertRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student name must not be blank")
	}
	if _, err := s.classes.FindByID(ctx, teacherID, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "class does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class")
	}
	return nil
}

func (s *StudentService) afterChange(ctx context.Context, teacherID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "reports:"+teacherID+":*"); err != nil {
			s.logger.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyChange(ctx, teacherID)
	}
}
