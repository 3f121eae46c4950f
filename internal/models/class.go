package models

import "time"

// Class is a taught group of students. LessonsPerWeek drives both the number
// of lesson-day slots shown for logging and the weekly engagement threshold.
type Class struct {
	ID             string    `db:"id" json:"id"`
	TeacherID      string    `db:"teacher_id" json:"-"`
	Name           string    `db:"name" json:"name"`
	LessonsPerWeek int       `db:"lessons_per_week" json:"lessons_per_week"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter captures filtering criteria for listing classes.
type ClassFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
