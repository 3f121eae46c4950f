package models

import "time"

// Student belongs to exactly one class. ExternalID is the optional roster
// number teachers key students by outside this system.
type Student struct {
	ID         string    `db:"id" json:"id"`
	TeacherID  string    `db:"teacher_id" json:"-"`
	ClassID    string    `db:"class_id" json:"class_id"`
	Name       string    `db:"name" json:"name"`
	ExternalID *string   `db:"external_id" json:"external_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	ClassID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
