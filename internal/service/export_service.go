package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/scoring"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
	"github.com/classpulse/classpulse-api/pkg/export"
	"github.com/classpulse/classpulse-api/pkg/jobs"
	"github.com/classpulse/classpulse-api/pkg/storage"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, teacherID, id string) (*models.ExportJob, error)
	List(ctx context.Context, teacherID string, limit int) ([]models.ExportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ExportStatus, progress int) error
	MarkFinished(ctx context.Context, id, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

type exportReportProvider interface {
	StudentWeekly(ctx context.Context, teacherID, studentID string, weekStart time.Time) (*models.WeeklySummary, error)
	ClassWeekly(ctx context.Context, teacherID, classID string, weekStart time.Time) (*models.ClassWeeklySummary, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, summaryLines []string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Workers         int
	MaxRetries      int
}

// ExportService renders weekly and class reports to downloadable artifacts.
// Rendering runs on a background worker pool; callers poll the job record
// until it carries a signed download URL.
type ExportService struct {
	repo    exportJobRepository
	reports exportReportProvider
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
	cfg     ExportConfig
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Repo    exportJobRepository
	Reports exportReportProvider
	Storage fileStorage
	CSV     csvRenderer
	PDF     pdfRenderer
	Signer  *storage.SignedURLSigner
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  ExportConfig
}

// NewExportService constructs an ExportService and its worker queue.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}

	s := &ExportService{
		repo:    params.Repo,
		reports: params.Reports,
		storage: params.Storage,
		csv:     csv,
		pdf:     pdf,
		signer:  params.Signer,
		metrics: params.Metrics,
		logger:  logger,
		cfg:     cfg,
	}
	s.queue = jobs.NewQueue("exports", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool and the artifact cleanup loop.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.cleanupLoop(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue records a new export job and hands it to the workers.
func (s *ExportService) Enqueue(ctx context.Context, teacherID string, exportType models.ExportType, params models.ExportJobParams) (*models.ExportJob, error) {
	switch exportType {
	case models.ExportTypeWeekly:
		if params.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required for weekly exports")
		}
	case models.ExportTypeClass:
		if params.ClassID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required for class exports")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export type %q", exportType))
	}
	if params.Format != models.ExportFormatCSV && params.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", params.Format))
	}
	params.WeekStart = WeekStartOf(params.WeekStart)

	job := &models.ExportJob{
		TeacherID: teacherID,
		Type:      exportType,
		Params:    params,
		Status:    models.ExportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(exportType), Payload: job}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "export queue is full"); markErr != nil {
			s.logger.Warn("failed to mark overflowed job", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export queue is full; retry shortly")
	}
	return job, nil
}

// Get returns one export job.
func (s *ExportService) Get(ctx context.Context, teacherID, jobID string) (*models.ExportJob, error) {
	job, err := s.repo.FindByID(ctx, teacherID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// List returns the teacher's recent export jobs.
func (s *ExportService) List(ctx context.Context, teacherID string, limit int) ([]models.ExportJob, error) {
	jobList, err := s.repo.List(ctx, teacherID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobList, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to a stored artifact.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

func (s *ExportService) process(ctx context.Context, queued jobs.Job) error {
	job, ok := queued.Payload.(*models.ExportJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", queued.Payload)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, models.ExportStatusProcessing, 10); err != nil {
		s.logger.Warn("failed to mark export processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	dataset, title, summaryLines, err := s.buildDataset(ctx, job)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("build dataset: %w", err))
	}
	if err := s.repo.UpdateStatus(ctx, job.ID, models.ExportStatusProcessing, 50); err != nil {
		s.logger.Warn("failed to update export progress", zap.String("job_id", job.ID), zap.Error(err))
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title, summaryLines)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("render: %w", err))
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("store artifact: %w", err))
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("sign download url: %w", err))
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	resultURL := fmt.Sprintf("%s/exports/download/%s", prefix, token)

	if err := s.repo.MarkFinished(ctx, job.ID, resultURL); err != nil {
		return s.fail(ctx, job, fmt.Errorf("finish job: %w", err))
	}
	if s.metrics != nil {
		s.metrics.RecordExportJob("finished")
	}
	s.logger.Info("export finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Params.Format)))
	return nil
}

func (s *ExportService) fail(ctx context.Context, job *models.ExportJob, cause error) error {
	if err := s.repo.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark export failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordExportJob("failed")
	}
	s.logger.Error("export failed", zap.String("job_id", job.ID), zap.Error(cause))
	return cause
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, []string, error) {
	switch job.Type {
	case models.ExportTypeWeekly:
		return s.buildWeeklyDataset(ctx, job)
	case models.ExportTypeClass:
		return s.buildClassDataset(ctx, job)
	default:
		return export.Dataset{}, "", nil, fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildWeeklyDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, []string, error) {
	summary, err := s.reports.StudentWeekly(ctx, job.TeacherID, job.Params.StudentID, job.Params.WeekStart)
	if err != nil {
		return export.Dataset{}, "", nil, err
	}

	rows := make([]map[string]string, 0, len(summary.Logs))
	for _, log := range summary.Logs {
		rows = append(rows, map[string]string{
			"Date":          log.Date.Format(DateLayout),
			"Participation": fmt.Sprintf("%.1f", scoring.ParticipationScore(log.Participation)),
			"Engagement":    fmt.Sprintf("%.1f", scoring.EngagementScore(log.Engagement)),
			"Comments":      log.Comments,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Participation", "Engagement", "Comments"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Weekly Report: %s (week of %s)", summary.StudentName, summary.WeekStart.Format(DateLayout))
	summaryLines := []string{
		fmt.Sprintf("Average participation: %.2f", summary.AvgParticipation),
		fmt.Sprintf("Total engagement: %.2f", summary.TotalEngagement),
		fmt.Sprintf("Logged days: %d of %d lessons", len(summary.Logs), summary.LessonsPerWeek),
	}
	for _, warning := range summary.Warnings {
		summaryLines = append(summaryLines, "Warning: "+warning)
	}
	return dataset, title, summaryLines, nil
}

func (s *ExportService) buildClassDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, []string, error) {
	rollup, err := s.reports.ClassWeekly(ctx, job.TeacherID, job.Params.ClassID, job.Params.WeekStart)
	if err != nil {
		return export.Dataset{}, "", nil, err
	}

	rows := make([]map[string]string, 0, len(rollup.AtRiskStudents)+len(rollup.NoDataStudents))
	for _, student := range rollup.AtRiskStudents {
		rows = append(rows, map[string]string{
			"Student":           student.Name,
			"Status":            "At risk",
			"Total Engagement":  fmt.Sprintf("%.1f", student.TotalEngagement),
			"Avg Participation": fmt.Sprintf("%.2f", student.AvgParticipation),
		})
	}
	for _, student := range rollup.NoDataStudents {
		rows = append(rows, map[string]string{
			"Student":           student.Name,
			"Status":            "No data",
			"Total Engagement":  "",
			"Avg Participation": "",
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Status", "Total Engagement", "Avg Participation"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Class Report: %s (week of %s)", rollup.ClassName, rollup.WeekStart.Format(DateLayout))
	summaryLines := []string{
		fmt.Sprintf("Enrolled students: %d", rollup.TotalStudents),
		fmt.Sprintf("At risk: %d", rollup.AtRiskCount),
		fmt.Sprintf("Passing: %d", rollup.PassingCount),
		fmt.Sprintf("No data: %d", len(rollup.NoDataStudents)),
	}
	return dataset, title, summaryLines, nil
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	subject := job.Params.StudentID
	if job.Type == models.ExportTypeClass {
		subject = job.Params.ClassID
	}
	ext := strings.ToLower(string(job.Params.Format))
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(subject), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
			if err != nil {
				s.logger.Warn("artifact cleanup failed", zap.Error(err))
			} else if len(removed) > 0 {
				s.logger.Info("stale artifacts removed", zap.Int("count", len(removed)))
			}
			if _, err := s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.cfg.ResultTTL)); err != nil {
				s.logger.Warn("stale job cleanup failed", zap.Error(err))
			}
		}
	}
}
