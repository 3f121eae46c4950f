package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classpulse/classpulse-api/internal/models"
)

// ClassRepository manages persistence for class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns the teacher's classes matching the provided filters.
func (r *ClassRepository) List(ctx context.Context, teacherID string, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes"
	args := []interface{}{teacherID}
	conditions := []string{"teacher_id = $1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":             "name",
		"lessons_per_week": "lessons_per_week",
		"created_at":       "created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, teacher_id, name, lessons_per_week, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// ListAll returns every class owned by the teacher without pagination.
func (r *ClassRepository) ListAll(ctx context.Context, teacherID string) ([]models.Class, error) {
	const query = `SELECT id, teacher_id, name, lessons_per_week, created_at, updated_at
        FROM classes WHERE teacher_id = $1 ORDER BY name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list all classes: %w", err)
	}
	return classes, nil
}

// FindByID fetches one class scoped to its owning teacher.
func (r *ClassRepository) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	const query = `SELECT id, teacher_id, name, lessons_per_week, created_at, updated_at
        FROM classes WHERE id = $1 AND teacher_id = $2`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id, teacherID); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, teacher_id, name, lessons_per_week, created_at, updated_at)
        VALUES (:id, :teacher_id, :name, :lessons_per_week, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update mutates the class name and lessons-per-week.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, lessons_per_week = :lessons_per_week, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`
	result, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWithStudents removes the class and all of its students in one
// transaction and returns the ids of the removed students so the caller can
// purge their daily logs afterwards. The class and its roster disappear
// together; log cleanup is a separate follow-up step.
func (r *ClassRepository) DeleteWithStudents(ctx context.Context, teacherID, classID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete class: %w", err)
	}
	defer tx.Rollback()

	var studentIDs []string
	if err := tx.SelectContext(ctx, &studentIDs,
		"SELECT id FROM students WHERE class_id = $1 AND teacher_id = $2", classID, teacherID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM students WHERE class_id = $1 AND teacher_id = $2", classID, teacherID); err != nil {
		return nil, fmt.Errorf("delete class students: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM classes WHERE id = $1 AND teacher_id = $2", classID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("delete class: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete class: %w", err)
	}
	return studentIDs, nil
}
