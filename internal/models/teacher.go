package models

import "time"

// Teacher represents a member of the teaching staff.
type Teacher struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Subject        string    `db:"subject" json:"subject"`
	Qualifications string    `db:"qualifications" json:"qualifications"`
	EmploymentDate time.Time `db:"employment_date" json:"employment_date"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherFilter defines filter criteria for listing teachers.
type TeacherFilter struct {
	Search    string
	Subject   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
