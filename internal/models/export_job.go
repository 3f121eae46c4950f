package models

import "time"

// ExportType selects which report an export job renders.
type ExportType string

const (
	ExportTypeWeekly ExportType = "WEEKLY"
	ExportTypeClass  ExportType = "CLASS"
)

// ExportFormat selects the artifact format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "CSV"
	ExportFormatPDF ExportFormat = "PDF"
)

// ExportStatus tracks job lifecycle.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJobParams identifies the report to render.
type ExportJobParams struct {
	StudentID string       `db:"student_id" json:"student_id,omitempty"`
	ClassID   string       `db:"class_id" json:"class_id,omitempty"`
	WeekStart time.Time    `db:"week_start" json:"week_start"`
	Format    ExportFormat `db:"format" json:"format"`
}

// ExportJob is a persisted asynchronous report export.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	TeacherID    string          `db:"teacher_id" json:"-"`
	Type         ExportType      `db:"type" json:"type"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// Snapshot is the full tenant view pushed to watch subscribers on every
// change, mirroring what the dashboard keeps in memory.
type Snapshot struct {
	Classes   []Class    `json:"classes"`
	Students  []Student  `json:"students"`
	DailyLogs []DailyLog `json:"daily_logs"`
}
