package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-records-api/internal/models"
)

func TestSummarize(t *testing.T) {
	rows := []models.Attendance{
		{Status: models.AttendanceStatusPresent},
		{Status: models.AttendanceStatusPresent},
		{Status: models.AttendanceStatusAbsent},
		{Status: models.AttendanceStatusLate},
	}
	summary := Summarize("s1", rows)

	assert.Equal(t, "s1", summary.StudentID)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Present)
	assert.Equal(t, 1, summary.Absent)
	assert.Equal(t, 1, summary.Late)
	assert.InDelta(t, 0.5, summary.PresentRate, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize("s1", nil)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.PresentRate)
}
