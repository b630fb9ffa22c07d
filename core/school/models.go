package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/educarcms/educar/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Member filters
const (
	FilterAll      = "all"
	FilterStudents = "students"
	FilterTeachers = "teachers"
	FilterAdmins   = "admins"
	FilterInactive = "inactive"
)

// MembersPageSize is the page size of the members listing.
const MembersPageSize = 7

var Roles = []Role{
	{Name: "Student", Value: RoleStudent},
	{Name: "Teacher", Value: RoleTeacher},
	{Name: "Admin", Value: RoleAdmin},
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// School is a tenant. Every course, lesson and membership hangs off one.
type School struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	OwnerID        string    `json:"owner_id"`
	Email          string    `json:"email"`
	Telephone      string    `json:"telephone"`
	Slogan         string    `json:"slogan"`
	Theme          string    `json:"theme"`
	PrimaryColor   string    `json:"primary_color"`
	SecondaryColor string    `json:"secondary_color"`
	ThemeMode      string    `json:"theme_mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// Member is the role-bearing membership of a user within one School.
type Member struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Credits   float64   `json:"credits"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Member) IsAdmin() bool   { return m.Role == RoleAdmin }
func (m Member) IsTeacher() bool { return m.Role == RoleTeacher }
func (m Member) IsStudent() bool { return m.Role == RoleStudent }
func (m Member) IsStaff() bool   { return m.IsAdmin() || m.IsTeacher() }

// MemberDetail is a Member joined with its user's public fields.
type MemberDetail struct {
	Member
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

type NewSchool struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Telephone string `json:"telephone"`
	Slogan    string `json:"slogan"`
	OwnerID   string `json:"owner_id" validate:"required"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Telephone = core.CleanString(ns.Telephone)
	ns.Slogan = core.CleanString(ns.Slogan)
	return validate.Struct(ns)
}

// UpdateSettings holds the editable school settings; empty optional fields clear the value.
type UpdateSettings struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Telephone string `json:"telephone"`
	Slogan    string `json:"slogan"`
}

func (us *UpdateSettings) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.Telephone = core.CleanString(us.Telephone)
	us.Slogan = core.CleanString(us.Slogan)
	return validate.Struct(us)
}

// UpdateAppearance keeps the previous value of every empty field.
type UpdateAppearance struct {
	Theme          string `json:"theme"`
	PrimaryColor   string `json:"primary_color" validate:"omitempty,hexcolor_"`
	SecondaryColor string `json:"secondary_color" validate:"omitempty,hexcolor_"`
	ThemeMode      string `json:"theme_mode" validate:"omitempty,oneof=light dark auto"`
}

func (ua *UpdateAppearance) Validate(validate *validator.Validate) error {
	ua.Theme = core.CleanString(ua.Theme)
	ua.PrimaryColor = core.CleanString(ua.PrimaryColor)
	ua.SecondaryColor = core.CleanString(ua.SecondaryColor)
	ua.ThemeMode = core.CleanString(ua.ThemeMode, true /* lower */)
	return validate.Struct(ua)
}

// NewSchoolUser is submitted by a school admin to register a person in the school.
type NewSchoolUser struct {
	Name     string `json:"full_name" validate:"required"`
	Username string `json:"username" validate:"required,ru"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin teacher student"`
	Password string `json:"password"`
}

func (nu *NewSchoolUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	return validate.Struct(nu)
}

// UpdateSchoolUser edits a membership and its user. Empty fields keep their value.
type UpdateSchoolUser struct {
	Name     string   `json:"full_name"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Phone    string   `json:"phone"`
	Role     string   `json:"role" validate:"omitempty,oneof=admin teacher student"`
	Credits  *float64 `json:"credits" validate:"omitempty,min=0"`
	IsActive *bool    `json:"is_active"`
}

func (uu *UpdateSchoolUser) Validate(validate *validator.Validate) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Phone = core.CleanString(uu.Phone)
	uu.Role = core.CleanString(uu.Role, true /* lower */)
	return validate.Struct(uu)
}

type MemberFilter struct {
	Kind   string `query:"filter"` // one of the Filter* constants
	Search string `query:"search"`
}

func (mf *MemberFilter) Clean() {
	mf.Kind = core.CleanString(mf.Kind, true /* lower */)
	if mf.Kind == "" {
		mf.Kind = FilterAll
	}
	mf.Search = core.CleanString(mf.Search)
}

type GetFilter struct {
	ID   string
	Slug string
}

type MemberGetFilter struct {
	ID       string
	SchoolID string
	UserID   string
}
