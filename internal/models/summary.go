package models

import "time"

// WeeklySummary is the derived weekly report for one student. It is
// recomputed on demand and never persisted.
type WeeklySummary struct {
	StudentID        string     `json:"student_id"`
	StudentName      string     `json:"student_name"`
	WeekStart        time.Time  `json:"week_start"`
	AvgParticipation float64    `json:"avg_participation"`
	TotalEngagement  float64    `json:"total_engagement"`
	LessonsPerWeek   int        `json:"lessons_per_week"`
	Warnings         []string   `json:"warnings"`
	Logs             []DailyLog `json:"logs"`
	Feedback         *string    `json:"feedback,omitempty"`
}

// AtRiskStudent is one entry of a class rollup's at-risk list.
type AtRiskStudent struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	TotalEngagement  float64 `json:"total_engagement"`
	AvgParticipation float64 `json:"avg_participation"`
}

// NoDataStudent marks an enrolled student without any log in the window.
// Absence of data is not evidence of risk, so these are listed apart.
type NoDataStudent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClassWeeklySummary is the derived per-class weekly rollup.
type ClassWeeklySummary struct {
	ClassID        string          `json:"class_id"`
	ClassName      string          `json:"class_name"`
	WeekStart      time.Time       `json:"week_start"`
	LessonsPerWeek int             `json:"lessons_per_week"`
	TotalStudents  int             `json:"total_students"`
	AtRiskCount    int             `json:"at_risk_count"`
	PassingCount   int             `json:"passing_count"`
	AtRiskStudents []AtRiskStudent `json:"at_risk_students"`
	NoDataStudents []NoDataStudent `json:"no_data_students"`
}

// FeedbackLogLine is one scored daily log forwarded to the feedback
// collaborator.
type FeedbackLogLine struct {
	Date               string  `json:"date"`
	Comments           string  `json:"comments"`
	ParticipationScore float64 `json:"participationScore"`
	EngagementScore    float64 `json:"engagementScore"`
}

// FeedbackRequest is the payload sent to the external generator.
type FeedbackRequest struct {
	StudentName      string            `json:"studentName"`
	AvgParticipation float64           `json:"avgParticipation"`
	TotalEngagement  float64           `json:"totalEngagement"`
	DailyLogs        []FeedbackLogLine `json:"dailyLogs"`
}
