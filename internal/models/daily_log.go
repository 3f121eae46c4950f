package models

import "time"

// RubricVersionCurrent is the only rubric shape this build reads and writes.
// Older stored shapes must be migrated before use; loading an unknown version
// is a typed error rather than field-by-field defaulting.
const RubricVersionCurrent = 2

// ParticipationDetails holds the five participation sub-scores, each 0-4.
type ParticipationDetails struct {
	Amount     float64 `db:"participation_amount" json:"amount"`
	Quality    float64 `db:"participation_quality" json:"quality"`
	Listening  float64 `db:"participation_listening" json:"listening"`
	Attitude   float64 `db:"participation_attitude" json:"attitude"`
	Initiative float64 `db:"participation_initiative" json:"initiative"`
}

// EngagementDetails holds the engagement rubric: attendance counts double,
// preparedness and focus are 0/0.5/1, respect is 0/1.
type EngagementDetails struct {
	Attendance   bool    `db:"engagement_attendance" json:"attendance"`
	Preparedness float64 `db:"engagement_preparedness" json:"preparedness"`
	Focus        float64 `db:"engagement_focus" json:"focus"`
	Respect      float64 `db:"engagement_respect" json:"respect"`
}

// DailyLog is one student's rubric entry for one calendar date. The natural
// key is (StudentID, Date); the surrogate id is assigned on first insert and
// preserved across edits.
type DailyLog struct {
	ID            string               `db:"id" json:"id"`
	TeacherID     string               `db:"teacher_id" json:"-"`
	StudentID     string               `db:"student_id" json:"student_id"`
	Date          time.Time            `db:"date" json:"date"`
	RubricVersion int                  `db:"rubric_version" json:"rubric_version"`
	Participation ParticipationDetails `db:"participation" json:"participation"`
	Engagement    EngagementDetails    `db:"engagement" json:"engagement"`
	Comments      string               `db:"comments" json:"comments"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updated_at"`
}

// LogEntry is one row of the edit buffer submitted on save; the student id
// and date come from the surrounding request.
type LogEntry struct {
	Participation ParticipationDetails `json:"participation"`
	Engagement    EngagementDetails    `json:"engagement"`
	Comments      string               `json:"comments"`
}

// DailyLogFilter captures filtering criteria for listing logs.
type DailyLogFilter struct {
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
}
