package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classpulse/classpulse-api/internal/models"
)

// exportJobRow is the flat scan target for export_jobs; params travel as a
// JSONB column.
type exportJobRow struct {
	ID           string     `db:"id"`
	TeacherID    string     `db:"teacher_id"`
	Type         string     `db:"type"`
	Params       []byte     `db:"params"`
	Status       string     `db:"status"`
	Progress     int        `db:"progress"`
	ResultURL    *string    `db:"result_url"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

func (row exportJobRow) toModel() (models.ExportJob, error) {
	job := models.ExportJob{
		ID:           row.ID,
		TeacherID:    row.TeacherID,
		Type:         models.ExportType(row.Type),
		Status:       models.ExportStatus(row.Status),
		Progress:     row.Progress,
		ResultURL:    row.ResultURL,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		FinishedAt:   row.FinishedAt,
	}
	if len(row.Params) > 0 {
		if err := json.Unmarshal(row.Params, &job.Params); err != nil {
			return job, fmt.Errorf("unmarshal export params for %s: %w", row.ID, err)
		}
	}
	return job, nil
}

// ExportJobRepository manages persistence for asynchronous report exports.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository constructs an ExportJobRepository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create inserts a freshly queued export job.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal export params: %w", err)
	}
	const query = `INSERT INTO export_jobs (id, teacher_id, type, params, status, progress, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.TeacherID, string(job.Type), params,
		string(job.Status), job.Progress, job.CreatedAt); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// FindByID fetches one export job scoped to its owning teacher.
func (r *ExportJobRepository) FindByID(ctx context.Context, teacherID, id string) (*models.ExportJob, error) {
	const query = `SELECT id, teacher_id, type, params, status, progress, result_url, error_message, created_at, finished_at
        FROM export_jobs WHERE id = $1 AND teacher_id = $2`
	var row exportJobRow
	if err := r.db.GetContext(ctx, &row, query, id, teacherID); err != nil {
		return nil, err
	}
	job, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the teacher's jobs newest first.
func (r *ExportJobRepository) List(ctx context.Context, teacherID string, limit int) ([]models.ExportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, teacher_id, type, params, status, progress, result_url, error_message, created_at, finished_at
        FROM export_jobs WHERE teacher_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var rows []exportJobRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	jobs := make([]models.ExportJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpdateStatus moves a job through its lifecycle.
func (r *ExportJobRepository) UpdateStatus(ctx context.Context, id string, status models.ExportStatus, progress int) error {
	const query = `UPDATE export_jobs SET status = $2, progress = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(status), progress); err != nil {
		return fmt.Errorf("update export status: %w", err)
	}
	return nil
}

// MarkFinished records a successful render and its download URL.
func (r *ExportJobRepository) MarkFinished(ctx context.Context, id, resultURL string) error {
	const query = `UPDATE export_jobs SET status = $2, progress = 100, result_url = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(models.ExportStatusFinished), resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish export job: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (r *ExportJobRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE export_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(models.ExportStatusFailed), message, time.Now().UTC()); err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return nil
}

// DeleteOlderThan removes finished and failed jobs past the retention cutoff
// and returns their ids so stored artifacts can be cleaned up alongside.
func (r *ExportJobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `DELETE FROM export_jobs
        WHERE finished_at IS NOT NULL AND finished_at < $1 RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, fmt.Errorf("delete stale export jobs: %w", err)
	}
	return ids, nil
}
