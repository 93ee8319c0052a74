package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Attendance represents a single attendance row. At most one row exists per
// (student, class, date).
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	RecordedBy string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceRecord extends the row with student metadata for listings.
type AttendanceRecord struct {
	Attendance
	StudentName string `db:"student_name" json:"student_name"`
}

// AttendanceFilter defines query filters.
type AttendanceFilter struct {
	ClassID    string
	StudentID  string
	StudentIDs []string
	Status     *AttendanceStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// AttendanceSummary aggregates a student's attendance rows. PresentRate is
// recomputed from rows on every read and never stored.
type AttendanceSummary struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	Total       int     `db:"total" json:"total"`
	Present     int     `db:"present" json:"present"`
	Absent      int     `db:"absent" json:"absent"`
	Late        int     `db:"late" json:"late"`
	PresentRate float64 `json:"present_rate"`
}
