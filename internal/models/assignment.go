package models

import "time"

// AssignmentStatus reflects whether an assignment accepts submissions.
type AssignmentStatus string

const (
	AssignmentStatusOpen   AssignmentStatus = "OPEN"
	AssignmentStatusClosed AssignmentStatus = "CLOSED"
)

// Valid returns true when the status is a supported value.
func (s AssignmentStatus) Valid() bool {
	return s == AssignmentStatusOpen || s == AssignmentStatusClosed
}

// Assignment represents work posted by a teacher for a class.
type Assignment struct {
	ID          string           `db:"id" json:"id"`
	ClassID     string           `db:"class_id" json:"class_id"`
	TeacherID   string           `db:"teacher_id" json:"teacher_id"`
	Subject     string           `db:"subject" json:"subject"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	DueDate     time.Time        `db:"due_date" json:"due_date"`
	MaxScore    int              `db:"max_score" json:"max_score"`
	Status      AssignmentStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail extends Assignment with teacher metadata.
type AssignmentDetail struct {
	Assignment
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// AssignmentFilter defines filter criteria for listing assignments.
type AssignmentFilter struct {
	ClassID   string
	TeacherID string
	Subject   string
	Status    *AssignmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
