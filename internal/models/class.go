package models

import "time"

// Class represents an academic class. EnrolledCount is a maintained
// projection of how many students reference the class; the student rows are
// the source of truth for membership.
type Class struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Level         string    `db:"level" json:"level"`
	Subject       string    `db:"subject" json:"subject"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	Capacity      int       `db:"capacity" json:"capacity"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with teacher information and, on single-class
// reads, the enrolled roster.
type ClassDetail struct {
	Class
	TeacherName *string   `db:"teacher_name" json:"teacher_name,omitempty"`
	Students    []Student `db:"-" json:"students,omitempty"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Level     string
	Subject   string
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
