package models

import "time"

// Grade represents a scored piece of work. Letter is always derived from
// score and max score, never supplied by callers. SubmissionID is set when
// the grade was produced by grading a submission; manually entered grades
// leave it nil.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SubmissionID *string   `db:"submission_id" json:"submission_id,omitempty"`
	Subject      string    `db:"subject" json:"subject"`
	Assignment   string    `db:"assignment" json:"assignment"`
	Score        int       `db:"score" json:"score"`
	MaxScore     int       `db:"max_score" json:"max_score"`
	Letter       string    `db:"letter" json:"letter"`
	Term         string    `db:"term" json:"term"`
	Feedback     string    `db:"feedback" json:"feedback"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail extends Grade with student metadata.
type GradeDetail struct {
	Grade
	StudentName string `db:"student_name" json:"student_name"`
}

// GradeFilter defines filter criteria for listing grades.
type GradeFilter struct {
	StudentID  string
	StudentIDs []string
	Subject    string
	Term       string
	ClassID    string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
