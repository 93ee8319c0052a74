package models

import "time"

// Student represents a learner registered in the school. ClassID is nil
// while the student is unassigned; otherwise it must reference an existing
// class.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	ClassID       *string   `db:"class_id" json:"class_id,omitempty"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	DateOfBirth   time.Time `db:"date_of_birth" json:"date_of_birth"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with class context.
type StudentDetail struct {
	Student
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	Active    *bool
	IDs       []string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
