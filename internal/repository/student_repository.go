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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns the teacher's students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, teacherID string, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students"
	args := []interface{}{teacherID}
	conditions := []string{"teacher_id = $1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(COALESCE(external_id, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":        "name",
		"external_id": "external_id",
		"created_at":  "created_at",
	}
	if sortBy == "" {
		sortBy = "name"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "name"
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

	query := fmt.Sprintf(`SELECT id, teacher_id, class_id, name, external_id, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListByClass returns every student in one class ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error) {
	const query = `SELECT id, teacher_id, class_id, name, external_id, created_at, updated_at
        FROM students WHERE class_id = $1 AND teacher_id = $2 ORDER BY name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// ListAll returns every student owned by the teacher.
func (r *StudentRepository) ListAll(ctx context.Context, teacherID string) ([]models.Student, error) {
	const query = `SELECT id, teacher_id, class_id, name, external_id, created_at, updated_at
        FROM students WHERE teacher_id = $1 ORDER BY name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, teacherID); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// FindByID fetches one student scoped to its owning teacher.
func (r *StudentRepository) FindByID(ctx context.Context, teacherID, id string) (*models.Student, error) {
	const query = `SELECT id, teacher_id, class_id, name, external_id, created_at, updated_at
        FROM students WHERE id = $1 AND teacher_id = $2`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id, teacherID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, teacher_id, class_id, name, external_id, created_at, updated_at)
        VALUES (:id, :teacher_id, :class_id, :name, :external_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update mutates the student's name, class, and external id.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, class_id = :class_id, external_id = :external_id, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`
	result, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWithLogs removes the student and every daily log recorded for them as
// a single transaction. Either the student and all their history disappear or
// nothing changes.
func (r *StudentRepository) DeleteWithLogs(ctx context.Context, teacherID, studentID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM daily_logs WHERE student_id = $1 AND teacher_id = $2", studentID, teacherID); err != nil {
		return fmt.Errorf("delete student logs: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM students WHERE id = $1 AND teacher_id = $2", studentID, teacherID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	return nil
}

// CountByClass returns the roster size for one class.
func (r *StudentRepository) CountByClass(ctx context.Context, teacherID, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM students WHERE class_id = $1 AND teacher_id = $2", classID, teacherID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}
