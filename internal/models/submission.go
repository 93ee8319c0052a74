package models

import "time"

// SubmissionStatus enumerates the submission lifecycle states.
type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "PENDING"
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusGraded    SubmissionStatus = "GRADED"
)

// Valid returns true when the status is a supported value.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusSubmitted, SubmissionStatusGraded:
		return true
	default:
		return false
	}
}

// Submission represents a student's answer to an assignment. At most one
// submission exists per (assignment, student) pair.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Text         string           `db:"text" json:"text"`
	FileLocator  *string          `db:"file_locator" json:"file_locator,omitempty"`
	Status       SubmissionStatus `db:"status" json:"status"`
	GradeID      *string          `db:"grade_id" json:"grade_id,omitempty"`
	SubmittedAt  *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmissionDetail extends Submission with assignment and student metadata.
type SubmissionDetail struct {
	Submission
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	StudentName     string  `db:"student_name" json:"student_name"`
	MaxScore        int     `db:"max_score" json:"max_score"`
	Score           *int    `db:"score" json:"score,omitempty"`
	Letter          *string `db:"letter" json:"letter,omitempty"`
}

// SubmissionFilter defines filter criteria for listing submissions.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	ClassID      string
	Status       *SubmissionStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
