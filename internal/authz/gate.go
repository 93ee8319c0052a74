package authz

import "github.com/noah-isme/school-records-api/internal/models"

// Action enumerates the operations the gate decides on.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGrade  Action = "grade"
)

// Kind identifies the resource family an operation targets.
type Kind string

const (
	KindAccount    Kind = "accounts"
	KindStudent    Kind = "students"
	KindTeacher    Kind = "teachers"
	KindClass      Kind = "classes"
	KindAssignment Kind = "assignments"
	KindSubmission Kind = "submissions"
	KindGrade      Kind = "grades"
	KindAttendance Kind = "attendance"
	KindReport     Kind = "reports"
)

// DenyReason explains why the gate refused an operation.
type DenyReason string

const (
	ReasonRoleNotPermitted DenyReason = "role_not_permitted"
	ReasonNotOwner         DenyReason = "not_owner"
	ReasonNotLinked        DenyReason = "not_linked"
)

// Decision is the gate's verdict for one (account, action, resource) triple.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Resource describes the target of an operation with just enough ownership
// context for a decision. Zero fields mean "not applicable".
type Resource struct {
	Kind      Kind
	ID        string
	StudentID string // owning student (profile, submission, grade, attendance)
	TeacherID string // responsible teacher (class, assignment)
	ClassID   string // class the resource belongs to
}

// Linkage carries the acting account's relationships, loaded fresh for every
// call so role or link changes take effect immediately.
type Linkage struct {
	PersonID      string   // the actor's own student or teacher id
	ClassID       string   // the acting student's own class
	ChildIDs      []string // students linked to a parent account
	ChildClassIDs []string // classes the linked children belong to
	ClassIDs      []string // classes taught by a teacher account
}

// Authorize evaluates the permission matrix for the acting account. The
// matrix is a closed set: anything not explicitly allowed is denied. The
// decision is re-derived per call; nothing is cached.
func Authorize(account *models.Account, action Action, res Resource, link Linkage) Decision {
	if account == nil || !account.Active {
		return deny(ReasonRoleNotPermitted)
	}

	switch account.Role {
	case models.RoleAdmin:
		return authorizeAdmin(action, res)
	case models.RoleTeacher:
		return authorizeTeacher(action, res, link)
	case models.RoleStudent:
		return authorizeStudent(action, res, link)
	case models.RoleParent:
		return authorizeParent(action, res, link)
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

func authorizeAdmin(action Action, res Resource) Decision {
	switch res.Kind {
	case KindAccount, KindStudent, KindTeacher, KindClass:
		return allow()
	case KindSubmission:
		// Admins may read any submission and finalise grading, but the
		// academic records themselves are written by teachers.
		if action == ActionRead || action == ActionGrade {
			return allow()
		}
		return deny(ReasonRoleNotPermitted)
	case KindAssignment, KindGrade, KindAttendance, KindReport:
		if action == ActionRead {
			return allow()
		}
		return deny(ReasonRoleNotPermitted)
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

func authorizeTeacher(action Action, res Resource, link Linkage) Decision {
	teachesClass := func(classID string) bool {
		for _, id := range link.ClassIDs {
			if id == classID {
				return true
			}
		}
		return false
	}

	switch res.Kind {
	case KindStudent:
		if action == ActionRead {
			return allow()
		}
		return deny(ReasonRoleNotPermitted)
	case KindTeacher:
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		if res.ID != "" && res.ID != link.PersonID {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindClass:
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		if res.ID != "" && !teachesClass(res.ID) {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindAssignment:
		if action == ActionRead {
			return allow()
		}
		if res.TeacherID != "" && res.TeacherID != link.PersonID {
			return deny(ReasonNotOwner)
		}
		if res.ClassID != "" && !teachesClass(res.ClassID) {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindSubmission:
		if action != ActionRead && action != ActionGrade {
			return deny(ReasonRoleNotPermitted)
		}
		if res.ClassID != "" && !teachesClass(res.ClassID) {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindGrade, KindAttendance, KindReport:
		if res.ClassID != "" && !teachesClass(res.ClassID) {
			return deny(ReasonNotOwner)
		}
		return allow()
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

func authorizeStudent(action Action, res Resource, link Linkage) Decision {
	ownSelf := func(studentID string) Decision {
		if studentID != "" && studentID != link.PersonID {
			return deny(ReasonNotOwner)
		}
		return allow()
	}

	switch res.Kind {
	case KindStudent:
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		return ownSelf(res.ID)
	case KindClass:
		// Students read their own class only.
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		if res.ID != "" && res.ID != link.ClassID {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindAssignment:
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		if res.ClassID != "" && res.ClassID != link.ClassID {
			return deny(ReasonNotOwner)
		}
		return allow()
	case KindSubmission:
		if action != ActionCreate && action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		return ownSelf(res.StudentID)
	case KindGrade, KindAttendance, KindReport:
		if action != ActionRead {
			return deny(ReasonRoleNotPermitted)
		}
		return ownSelf(res.StudentID)
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

func authorizeParent(action Action, res Resource, link Linkage) Decision {
	if action != ActionRead {
		return deny(ReasonRoleNotPermitted)
	}

	linkedChild := func(studentID string) Decision {
		if studentID == "" {
			return allow()
		}
		for _, id := range link.ChildIDs {
			if id == studentID {
				return allow()
			}
		}
		return deny(ReasonNotLinked)
	}
	childClass := func(classID string) bool {
		for _, id := range link.ChildClassIDs {
			if id == classID {
				return true
			}
		}
		return false
	}

	switch res.Kind {
	case KindStudent:
		return linkedChild(res.ID)
	case KindClass:
		// Visible only through a linked child's membership.
		if res.ID != "" && !childClass(res.ID) {
			return deny(ReasonNotLinked)
		}
		return linkedChild(res.StudentID)
	case KindAssignment:
		if res.ClassID != "" && !childClass(res.ClassID) {
			return deny(ReasonNotLinked)
		}
		return linkedChild(res.StudentID)
	case KindSubmission, KindGrade, KindAttendance, KindReport:
		return linkedChild(res.StudentID)
	default:
		return deny(ReasonRoleNotPermitted)
	}
}
