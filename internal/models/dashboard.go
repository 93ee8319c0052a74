package models

import "time"

// AdminDashboard aggregates school-wide headline numbers.
type AdminDashboard struct {
	TotalStudents int       `json:"total_students"`
	TotalTeachers int       `json:"total_teachers"`
	TotalClasses  int       `json:"total_classes"`
	TotalAccounts int       `json:"total_accounts"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// TeacherDashboard summarises a teacher's classes and pending work.
type TeacherDashboard struct {
	Classes             []ClassDetail `json:"classes"`
	OpenAssignments     int           `json:"open_assignments"`
	UngradedSubmissions int           `json:"ungraded_submissions"`
	GeneratedAt         time.Time     `json:"generated_at"`
}

// StudentDashboard summarises one student's standing.
type StudentDashboard struct {
	Student      StudentDetail     `json:"student"`
	RecentGrades []Grade           `json:"recent_grades"`
	Attendance   AttendanceSummary `json:"attendance"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// ParentDashboard bundles one StudentDashboard per linked child.
type ParentDashboard struct {
	Children    []StudentDashboard `json:"children"`
	GeneratedAt time.Time          `json:"generated_at"`
}
