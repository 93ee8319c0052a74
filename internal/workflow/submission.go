package workflow

import (
	"time"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

// SubmitPolicy carries the configuration flags that relax the submission
// rules. Both default to false: no late entries, no overwrites.
type SubmitPolicy struct {
	AllowLate     bool
	AllowResubmit bool
}

// CanTransition reports whether moving a submission from one status to
// another is legal. The lifecycle is strictly one-way:
// PENDING -> SUBMITTED -> GRADED.
func CanTransition(from, to models.SubmissionStatus) bool {
	switch from {
	case models.SubmissionStatusPending:
		return to == models.SubmissionStatusSubmitted
	case models.SubmissionStatusSubmitted:
		return to == models.SubmissionStatusGraded
	default:
		return false
	}
}

// CheckSubmit validates the PENDING -> SUBMITTED transition for an
// assignment at the given time. existing is the stored submission for the
// (assignment, student) pair, nil when none exists yet.
func CheckSubmit(assignment *models.Assignment, existing *models.Submission, now time.Time, policy SubmitPolicy) error {
	if assignment.Status == models.AssignmentStatusClosed {
		return appErrors.Clone(appErrors.ErrIllegalTransition, "assignment is closed")
	}
	if now.After(assignment.DueDate) && !policy.AllowLate {
		return appErrors.ErrPastDeadline
	}
	if existing == nil {
		return nil
	}
	if existing.Status == models.SubmissionStatusGraded {
		return appErrors.Clone(appErrors.ErrIllegalTransition, "submission already graded")
	}
	if existing.Status == models.SubmissionStatusSubmitted && !policy.AllowResubmit {
		return appErrors.ErrDuplicateSubmission
	}
	return nil
}

// CheckGrade validates the SUBMITTED -> GRADED transition.
func CheckGrade(submission *models.Submission) error {
	if submission.Status == models.SubmissionStatusGraded {
		return appErrors.Clone(appErrors.ErrIllegalTransition, "submission already graded")
	}
	if !CanTransition(submission.Status, models.SubmissionStatusGraded) {
		return appErrors.Clone(appErrors.ErrIllegalTransition, "submission has not been submitted")
	}
	return nil
}
