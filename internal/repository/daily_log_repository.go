package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/pkg/chunk"
)

// membershipQueryLimit caps how many student ids a single membership
// predicate may carry. Queries and deletes over larger rosters are split into
// groups of this size.
const membershipQueryLimit = 30

const dailyLogColumns = `id, teacher_id, student_id, date, rubric_version,
        participation_amount, participation_quality, participation_listening, participation_attitude, participation_initiative,
        engagement_attendance, engagement_preparedness, engagement_focus, engagement_respect,
        comments, created_at, updated_at`

// dailyLogRow is the flat scan target for daily_logs; the rubric sub-scores
// live in discrete columns and are folded into the nested model on read.
type dailyLogRow struct {
	ID                      string    `db:"id"`
	TeacherID               string    `db:"teacher_id"`
	StudentID               string    `db:"student_id"`
	Date                    time.Time `db:"date"`
	RubricVersion           int       `db:"rubric_version"`
	ParticipationAmount     float64   `db:"participation_amount"`
	ParticipationQuality    float64   `db:"participation_quality"`
	ParticipationListening  float64   `db:"participation_listening"`
	ParticipationAttitude   float64   `db:"participation_attitude"`
	ParticipationInitiative float64   `db:"participation_initiative"`
	EngagementAttendance    bool      `db:"engagement_attendance"`
	EngagementPreparedness  float64   `db:"engagement_preparedness"`
	EngagementFocus         float64   `db:"engagement_focus"`
	EngagementRespect       float64   `db:"engagement_respect"`
	Comments                string    `db:"comments"`
	CreatedAt               time.Time `db:"created_at"`
	UpdatedAt               time.Time `db:"updated_at"`
}

func (row dailyLogRow) toModel() models.DailyLog {
	return models.DailyLog{
		ID:            row.ID,
		TeacherID:     row.TeacherID,
		StudentID:     row.StudentID,
		Date:          row.Date,
		RubricVersion: row.RubricVersion,
		Participation: models.ParticipationDetails{
			Amount:     row.ParticipationAmount,
			Quality:    row.ParticipationQuality,
			Listening:  row.ParticipationListening,
			Attitude:   row.ParticipationAttitude,
			Initiative: row.ParticipationInitiative,
		},
		Engagement: models.EngagementDetails{
			Attendance:   row.EngagementAttendance,
			Preparedness: row.EngagementPreparedness,
			Focus:        row.EngagementFocus,
			Respect:      row.EngagementRespect,
		},
		Comments:  row.Comments,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toRow(log models.DailyLog) dailyLogRow {
	return dailyLogRow{
		ID:                      log.ID,
		TeacherID:               log.TeacherID,
		StudentID:               log.StudentID,
		Date:                    log.Date,
		RubricVersion:           log.RubricVersion,
		ParticipationAmount:     log.Participation.Amount,
		ParticipationQuality:    log.Participation.Quality,
		ParticipationListening:  log.Participation.Listening,
		ParticipationAttitude:   log.Participation.Attitude,
		ParticipationInitiative: log.Participation.Initiative,
		EngagementAttendance:    log.Engagement.Attendance,
		EngagementPreparedness:  log.Engagement.Preparedness,
		EngagementFocus:         log.Engagement.Focus,
		EngagementRespect:       log.Engagement.Respect,
		Comments:                log.Comments,
		CreatedAt:               log.CreatedAt,
		UpdatedAt:               log.UpdatedAt,
	}
}

// DailyLogRepository manages persistence for daily rubric logs.
type DailyLogRepository struct {
	db *sqlx.DB
}

// NewDailyLogRepository constructs a DailyLogRepository.
func NewDailyLogRepository(db *sqlx.DB) *DailyLogRepository {
	return &DailyLogRepository{db: db}
}

// FindExistingIDs resolves which of the given students already have a log on
// the given date, returning a student-id to log-id map. Rosters larger than
// the membership limit are resolved in multiple queries.
func (r *DailyLogRepository) FindExistingIDs(ctx context.Context, teacherID string, date time.Time, studentIDs []string) (map[string]string, error) {
	existing := make(map[string]string, len(studentIDs))
	for _, group := range chunk.Partition(studentIDs, membershipQueryLimit) {
		query, args, err := sqlx.In(
			"SELECT id, student_id FROM daily_logs WHERE teacher_id = ? AND date = ? AND student_id IN (?)",
			teacherID, date, group)
		if err != nil {
			return nil, fmt.Errorf("build existing logs query: %w", err)
		}
		query = r.db.Rebind(query)

		var rows []struct {
			ID        string `db:"id"`
			StudentID string `db:"student_id"`
		}
		if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("find existing logs: %w", err)
		}
		for _, row := range rows {
			existing[row.StudentID] = row.ID
		}
	}
	return existing, nil
}

// SaveBatch writes one save operation's logs in a single transaction. Logs
// whose student already appears in existingIDs are updated in place under
// their original id; the rest are inserted under fresh ids. Returns the
// number of inserted and updated rows.
func (r *DailyLogRepository) SaveBatch(ctx context.Context, logs []models.DailyLog, existingIDs map[string]string) (int, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin save logs: %w", err)
	}
	defer tx.Rollback()

	const insertQuery = `INSERT INTO daily_logs (id, teacher_id, student_id, date, rubric_version,
        participation_amount, participation_quality, participation_listening, participation_attitude, participation_initiative,
        engagement_attendance, engagement_preparedness, engagement_focus, engagement_respect,
        comments, created_at, updated_at)
        VALUES (:id, :teacher_id, :student_id, :date, :rubric_version,
        :participation_amount, :participation_quality, :participation_listening, :participation_attitude, :participation_initiative,
        :engagement_attendance, :engagement_preparedness, :engagement_focus, :engagement_respect,
        :comments, :created_at, :updated_at)`

	const updateQuery = `UPDATE daily_logs SET rubric_version = :rubric_version,
        participation_amount = :participation_amount, participation_quality = :participation_quality,
        participation_listening = :participation_listening, participation_attitude = :participation_attitude,
        participation_initiative = :participation_initiative,
        engagement_attendance = :engagement_attendance, engagement_preparedness = :engagement_preparedness,
        engagement_focus = :engagement_focus, engagement_respect = :engagement_respect,
        comments = :comments, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`

	now := time.Now().UTC()
	created, updated := 0, 0
	for i := range logs {
		log := logs[i]
		log.UpdatedAt = now
		if id, ok := existingIDs[log.StudentID]; ok {
			log.ID = id
			if _, err := tx.NamedExecContext(ctx, updateQuery, toRow(log)); err != nil {
				return 0, 0, fmt.Errorf("update log for student %s: %w", log.StudentID, err)
			}
			updated++
			continue
		}
		if log.ID == "" {
			log.ID = uuid.NewString()
		}
		log.CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertQuery, toRow(log)); err != nil {
			return 0, 0, fmt.Errorf("insert log for student %s: %w", log.StudentID, err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit save logs: %w", err)
	}
	return created, updated, nil
}

// ListByStudents returns every log for the given students within an optional
// date window, splitting the membership predicate where the roster exceeds
// the per-query limit.
func (r *DailyLogRepository) ListByStudents(ctx context.Context, teacherID string, studentIDs []string, from, to *time.Time) ([]models.DailyLog, error) {
	var logs []models.DailyLog
	for _, group := range chunk.Partition(studentIDs, membershipQueryLimit) {
		base := "SELECT " + dailyLogColumns + " FROM daily_logs WHERE teacher_id = ? AND student_id IN (?)"
		args := []interface{}{teacherID, group}
		if from != nil {
			base += " AND date >= ?"
			args = append(args, *from)
		}
		if to != nil {
			base += " AND date <= ?"
			args = append(args, *to)
		}
		base += " ORDER BY date ASC"

		query, boundArgs, err := sqlx.In(base, args...)
		if err != nil {
			return nil, fmt.Errorf("build logs query: %w", err)
		}
		query = r.db.Rebind(query)

		var rows []dailyLogRow
		if err := r.db.SelectContext(ctx, &rows, query, boundArgs...); err != nil {
			return nil, fmt.Errorf("list logs: %w", err)
		}
		for _, row := range rows {
			logs = append(logs, row.toModel())
		}
	}
	return logs, nil
}

// ListByDateRange returns every one of the teacher's logs inside the window.
func (r *DailyLogRepository) ListByDateRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.DailyLog, error) {
	const query = `SELECT ` + dailyLogColumns + `
        FROM daily_logs WHERE teacher_id = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC, student_id ASC`
	var rows []dailyLogRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list logs by range: %w", err)
	}
	logs := make([]models.DailyLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.toModel())
	}
	return logs, nil
}

// ListByStudent returns one student's logs, newest first, within an optional
// date window.
func (r *DailyLogRepository) ListByStudent(ctx context.Context, teacherID, studentID string, from, to *time.Time) ([]models.DailyLog, error) {
	query := "SELECT " + dailyLogColumns + " FROM daily_logs WHERE teacher_id = $1 AND student_id = $2"
	args := []interface{}{teacherID, studentID}
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY date DESC"

	var rows []dailyLogRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list student logs: %w", err)
	}
	logs := make([]models.DailyLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.toModel())
	}
	return logs, nil
}

// ListByTeacher returns every one of the teacher's logs, oldest first.
func (r *DailyLogRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.DailyLog, error) {
	const query = `SELECT ` + dailyLogColumns + `
        FROM daily_logs WHERE teacher_id = $1 ORDER BY date ASC, student_id ASC`
	var rows []dailyLogRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher logs: %w", err)
	}
	logs := make([]models.DailyLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.toModel())
	}
	return logs, nil
}

// ListDates returns the distinct dates the teacher has logged anything on,
// oldest first. Drives the list of selectable report weeks.
func (r *DailyLogRepository) ListDates(ctx context.Context, teacherID string) ([]time.Time, error) {
	const query = `SELECT DISTINCT date FROM daily_logs WHERE teacher_id = $1 ORDER BY date ASC`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, teacherID); err != nil {
		return nil, fmt.Errorf("list log dates: %w", err)
	}
	return dates, nil
}

// DeleteByStudents purges every log belonging to the given students. The
// membership predicate is split into groups and each group is removed in its
// own transaction, so a failure partway leaves earlier groups deleted.
// Returns the number of rows removed.
func (r *DailyLogRepository) DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	var deleted int64
	for _, group := range chunk.Partition(studentIDs, membershipQueryLimit) {
		query, args, err := sqlx.In(
			"DELETE FROM daily_logs WHERE teacher_id = ? AND student_id IN (?)", teacherID, group)
		if err != nil {
			return deleted, fmt.Errorf("build delete logs query: %w", err)
		}
		query = r.db.Rebind(query)

		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return deleted, fmt.Errorf("begin delete logs: %w", err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			tx.Rollback()
			return deleted, fmt.Errorf("delete logs: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return deleted, fmt.Errorf("commit delete logs: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			deleted += affected
		}
	}
	return deleted, nil
}

// DeleteByDateRange purges every one of the teacher's logs inside the window
// and returns the number of rows removed.
func (r *DailyLogRepository) DeleteByDateRange(ctx context.Context, teacherID string, from, to time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM daily_logs WHERE teacher_id = $1 AND date >= $2 AND date <= $3", teacherID, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete logs by range: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
