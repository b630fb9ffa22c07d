// Package access holds the request context of a tenant operation and the guards deciding
// whether it may proceed.
//
// A guard never fails hard: it returns a Decision, and callers map a denial to a redirect.
package access

import (
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

// DeniedReason tells why a guard refused an operation.
type DeniedReason string

const (
	NotMember       DeniedReason = "not_member"
	AdminRequired   DeniedReason = "admin_required"
	StaffRequired   DeniedReason = "staff_required"
	StudentRequired DeniedReason = "student_required"
	NotEnrolled     DeniedReason = "not_enrolled"
	AttemptLimit    DeniedReason = "attempt_limit"
	NotOpen         DeniedReason = "not_open"
	Closed          DeniedReason = "closed"
	DraftContent    DeniedReason = "draft_content"
	CourseInactive  DeniedReason = "course_inactive"
	CourseFull      DeniedReason = "course_full"
	NotOwner        DeniedReason = "not_owner"
	AlreadySent     DeniedReason = "already_submitted"
	TimeOver        DeniedReason = "time_over"
)

var messages = map[DeniedReason]string{
	NotMember:       "you do not have access to this school",
	AdminRequired:   "only administrators or the school owner can access this page",
	StaffRequired:   "only teachers can access this page",
	StudentRequired: "only students can take assessments",
	NotEnrolled:     "you are not enrolled in this course",
	AttemptLimit:    "you have reached the maximum number of attempts",
	NotOpen:         "this assessment is not open yet",
	Closed:          "this assessment is closed",
	DraftContent:    "this content is not published yet",
	CourseInactive:  "this course is not available for enrollment",
	CourseFull:      "this course has reached its maximum number of students",
	NotOwner:        "you do not have permission to change this resource",
	AlreadySent:     "this attempt has already been submitted",
	TimeOver:        "the time limit of this attempt is over",
}

// Message returns a user facing explanation of r.
func (r DeniedReason) Message() string {
	if msg, ok := messages[r]; ok {
		return msg
	}
	return string(r)
}

// Decision is the outcome of a guard.
type Decision struct {
	Allowed bool
	Reason  DeniedReason
}

func Allow() Decision                   { return Decision{Allowed: true} }
func Deny(reason DeniedReason) Decision { return Decision{Reason: reason} }

// Context is the {currentUser, currentTenant} pair every tenant operation runs with.
type Context struct {
	User   user.User
	School school.School
	Member school.Member
}

func (c Context) IsOwner() bool   { return c.School.OwnerID != "" && c.School.OwnerID == c.User.ID }
func (c Context) IsAdmin() bool   { return c.Member.IsAdmin() || c.IsOwner() }
func (c Context) IsStaff() bool   { return c.Member.IsStaff() || c.IsOwner() }
func (c Context) IsStudent() bool { return c.Member.IsStudent() }

// Guard decides on a Context.
type Guard func(c Context) Decision

// Chain evaluates guards in order and returns the first denial.
func Chain(guards ...Guard) Guard {
	return func(c Context) Decision {
		for _, g := range guards {
			if d := g(c); !d.Allowed {
				return d
			}
		}
		return Allow()
	}
}

func RequireMember(c Context) Decision {
	if c.Member.ID == "" || c.Member.SchoolID != c.School.ID {
		return Deny(NotMember)
	}
	return Allow()
}

// RequireAdmin allows school admins and the school owner.
func RequireAdmin(c Context) Decision {
	if !c.IsAdmin() {
		return Deny(AdminRequired)
	}
	return Allow()
}

// RequireStaff allows admins and teachers.
func RequireStaff(c Context) Decision {
	if !c.IsStaff() {
		return Deny(StaffRequired)
	}
	return Allow()
}

func RequireStudent(c Context) Decision {
	if !c.IsStudent() {
		return Deny(StudentRequired)
	}
	return Allow()
}
