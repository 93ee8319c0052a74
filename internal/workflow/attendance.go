package workflow

import "github.com/noah-isme/school-records-api/internal/models"

// PresentRate derives the attendance rate from counted rows. A student with
// no rows has a rate of zero rather than a division error.
func PresentRate(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(present) / float64(total)
}

// Summarize folds attendance rows into an aggregate. Late counts as not
// present for the rate.
func Summarize(studentID string, rows []models.Attendance) models.AttendanceSummary {
	summary := models.AttendanceSummary{StudentID: studentID}
	for _, row := range rows {
		summary.Total++
		switch row.Status {
		case models.AttendanceStatusPresent:
			summary.Present++
		case models.AttendanceStatusAbsent:
			summary.Absent++
		case models.AttendanceStatusLate:
			summary.Late++
		}
	}
	summary.PresentRate = PresentRate(summary.Present, summary.Total)
	return summary
}
