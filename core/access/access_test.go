package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

func newContext(role string, owner bool) access.Context {
	usr := user.User{ID: "u1"}
	sch := school.School{ID: "s1", OwnerID: "someone-else"}
	if owner {
		sch.OwnerID = usr.ID
	}
	var m school.Member
	if role != "" {
		m = school.Member{ID: "m1", SchoolID: sch.ID, UserID: usr.ID, Role: role}
	}
	return access.Context{User: usr, School: sch, Member: m}
}

func TestGuards(t *testing.T) {
	tests := []struct {
		name  string
		ac    access.Context
		guard access.Guard
		want  access.Decision
	}{
		{"member", newContext(school.RoleStudent, false), access.RequireMember, access.Allow()},
		{"not a member", newContext("", false), access.RequireMember, access.Deny(access.NotMember)},
		{"member of another school", access.Context{School: school.School{ID: "s2"}, Member: school.Member{ID: "m1", SchoolID: "s1"}}, access.RequireMember, access.Deny(access.NotMember)},

		{"admin", newContext(school.RoleAdmin, false), access.RequireAdmin, access.Allow()},
		{"owner with teacher role", newContext(school.RoleTeacher, true), access.RequireAdmin, access.Allow()},
		{"teacher is not admin", newContext(school.RoleTeacher, false), access.RequireAdmin, access.Deny(access.AdminRequired)},

		{"teacher is staff", newContext(school.RoleTeacher, false), access.RequireStaff, access.Allow()},
		{"admin is staff", newContext(school.RoleAdmin, false), access.RequireStaff, access.Allow()},
		{"student is not staff", newContext(school.RoleStudent, false), access.RequireStaff, access.Deny(access.StaffRequired)},

		{"student", newContext(school.RoleStudent, false), access.RequireStudent, access.Allow()},
		{"owner is not student", newContext(school.RoleAdmin, true), access.RequireStudent, access.Deny(access.StudentRequired)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.guard(tt.ac))
		})
	}
}

func TestChain(t *testing.T) {
	guard := access.Chain(access.RequireMember, access.RequireStaff, access.RequireAdmin)

	assert.Equal(t, access.Deny(access.NotMember), guard(newContext("", false)))
	assert.Equal(t, access.Deny(access.StaffRequired), guard(newContext(school.RoleStudent, false)))
	assert.Equal(t, access.Deny(access.AdminRequired), guard(newContext(school.RoleTeacher, false)))
	assert.Equal(t, access.Allow(), guard(newContext(school.RoleAdmin, false)))
	assert.Equal(t, access.Allow(), access.Chain()(newContext("", false)))
}

func TestDeniedReason_Message(t *testing.T) {
	assert.Equal(t, "you are not enrolled in this course", access.NotEnrolled.Message())
	assert.Equal(t, "this attempt has already been submitted", access.AlreadySent.Message())
	assert.Equal(t, "custom", access.DeniedReason("custom").Message())
}
