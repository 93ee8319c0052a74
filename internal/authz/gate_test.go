package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-records-api/internal/models"
)

func account(role models.Role) *models.Account {
	return &models.Account{ID: "acc-1", Role: role, Active: true}
}

func TestAdminMatrix(t *testing.T) {
	admin := account(models.RoleAdmin)

	for _, kind := range []Kind{KindAccount, KindStudent, KindTeacher, KindClass} {
		for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
			d := Authorize(admin, action, Resource{Kind: kind}, Linkage{})
			assert.True(t, d.Allowed, "admin %s %s", action, kind)
		}
	}

	assert.True(t, Authorize(admin, ActionRead, Resource{Kind: KindGrade}, Linkage{}).Allowed)
	assert.False(t, Authorize(admin, ActionCreate, Resource{Kind: KindGrade}, Linkage{}).Allowed)
	assert.False(t, Authorize(admin, ActionCreate, Resource{Kind: KindAttendance}, Linkage{}).Allowed)
	assert.True(t, Authorize(admin, ActionGrade, Resource{Kind: KindSubmission}, Linkage{}).Allowed)
}

func TestTeacherMatrix(t *testing.T) {
	teacher := account(models.RoleTeacher)
	link := Linkage{PersonID: "t1", ClassIDs: []string{"c1"}}

	assert.True(t, Authorize(teacher, ActionRead, Resource{Kind: KindStudent, ID: "s9"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionCreate, Resource{Kind: KindStudent}, link).Allowed)

	// read self only
	assert.True(t, Authorize(teacher, ActionRead, Resource{Kind: KindTeacher, ID: "t1"}, link).Allowed)
	d := Authorize(teacher, ActionRead, Resource{Kind: KindTeacher, ID: "t2"}, link)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	// assigned classes only
	assert.True(t, Authorize(teacher, ActionRead, Resource{Kind: KindClass, ID: "c1"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionRead, Resource{Kind: KindClass, ID: "c2"}, link).Allowed)

	// own assignments
	assert.True(t, Authorize(teacher, ActionCreate, Resource{Kind: KindAssignment, ClassID: "c1"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionUpdate, Resource{Kind: KindAssignment, TeacherID: "t2"}, link).Allowed)

	// grade submissions for taught classes
	assert.True(t, Authorize(teacher, ActionGrade, Resource{Kind: KindSubmission, ClassID: "c1"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionGrade, Resource{Kind: KindSubmission, ClassID: "c2"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionDelete, Resource{Kind: KindSubmission, ClassID: "c1"}, link).Allowed)

	// attendance for taught classes
	assert.True(t, Authorize(teacher, ActionCreate, Resource{Kind: KindAttendance, ClassID: "c1"}, link).Allowed)
	assert.False(t, Authorize(teacher, ActionCreate, Resource{Kind: KindAttendance, ClassID: "c2"}, link).Allowed)
}

func TestStudentClassReadScopedToOwnClass(t *testing.T) {
	student := account(models.RoleStudent)
	link := Linkage{PersonID: "s1", ClassID: "c1"}

	assert.True(t, Authorize(student, ActionRead, Resource{Kind: KindClass, ID: "c1"}, link).Allowed)
	d := Authorize(student, ActionRead, Resource{Kind: KindClass, ID: "c2"}, link)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	// A student without a class may not read any specific class.
	noClass := Linkage{PersonID: "s1"}
	assert.False(t, Authorize(student, ActionRead, Resource{Kind: KindClass, ID: "c1"}, noClass).Allowed)

	// Assignments follow the same membership boundary.
	assert.True(t, Authorize(student, ActionRead, Resource{Kind: KindAssignment, ClassID: "c1"}, link).Allowed)
	assert.False(t, Authorize(student, ActionRead, Resource{Kind: KindAssignment, ClassID: "c2"}, link).Allowed)
}

func TestParentClassReadScopedToChildrenClasses(t *testing.T) {
	parent := account(models.RoleParent)
	link := Linkage{ChildIDs: []string{"s1"}, ChildClassIDs: []string{"c1"}}

	assert.True(t, Authorize(parent, ActionRead, Resource{Kind: KindClass, ID: "c1"}, link).Allowed)
	d := Authorize(parent, ActionRead, Resource{Kind: KindClass, ID: "c2"}, link)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotLinked, d.Reason)

	assert.True(t, Authorize(parent, ActionRead, Resource{Kind: KindAssignment, ClassID: "c1"}, link).Allowed)
	assert.False(t, Authorize(parent, ActionRead, Resource{Kind: KindAssignment, ClassID: "c2"}, link).Allowed)
}

func TestStudentMatrix(t *testing.T) {
	student := account(models.RoleStudent)
	link := Linkage{PersonID: "s1"}

	assert.True(t, Authorize(student, ActionRead, Resource{Kind: KindStudent, ID: "s1"}, link).Allowed)
	d := Authorize(student, ActionRead, Resource{Kind: KindStudent, ID: "s2"}, link)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	// a student may never delete a class, regardless of entity state
	for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
		d := Authorize(student, action, Resource{Kind: KindClass, ID: "c1"}, link)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonRoleNotPermitted, d.Reason)
	}

	assert.True(t, Authorize(student, ActionCreate, Resource{Kind: KindSubmission, StudentID: "s1"}, link).Allowed)
	assert.False(t, Authorize(student, ActionCreate, Resource{Kind: KindSubmission, StudentID: "s2"}, link).Allowed)
	assert.True(t, Authorize(student, ActionRead, Resource{Kind: KindGrade, StudentID: "s1"}, link).Allowed)
	assert.False(t, Authorize(student, ActionRead, Resource{Kind: KindGrade, StudentID: "s2"}, link).Allowed)
	assert.False(t, Authorize(student, ActionRead, Resource{Kind: KindTeacher, ID: "t1"}, link).Allowed)
}

func TestParentMatrix(t *testing.T) {
	parent := account(models.RoleParent)
	link := Linkage{ChildIDs: []string{"s1", "s2"}}

	assert.True(t, Authorize(parent, ActionRead, Resource{Kind: KindStudent, ID: "s1"}, link).Allowed)
	d := Authorize(parent, ActionRead, Resource{Kind: KindStudent, ID: "s3"}, link)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotLinked, d.Reason)

	assert.True(t, Authorize(parent, ActionRead, Resource{Kind: KindGrade, StudentID: "s2"}, link).Allowed)
	assert.False(t, Authorize(parent, ActionRead, Resource{Kind: KindGrade, StudentID: "s3"}, link).Allowed)
	assert.False(t, Authorize(parent, ActionCreate, Resource{Kind: KindSubmission, StudentID: "s1"}, link).Allowed)
	assert.False(t, Authorize(parent, ActionRead, Resource{Kind: KindTeacher}, link).Allowed)
}

func TestInactiveOrMissingAccount(t *testing.T) {
	assert.False(t, Authorize(nil, ActionRead, Resource{Kind: KindStudent}, Linkage{}).Allowed)

	inactive := account(models.RoleAdmin)
	inactive.Active = false
	assert.False(t, Authorize(inactive, ActionRead, Resource{Kind: KindStudent}, Linkage{}).Allowed)
}
