// Package profile holds the per-user account settings shared by every school a user belongs to.
package profile

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
)

var ErrNotFound = core.NewNotFoundError("profile")

type Profile struct {
	UserID        string    `json:"user_id"`
	Bio           string    `json:"bio"`
	Phone         string    `json:"phone"`
	BirthDate     null.Time `json:"birth_date"`
	Gender        string    `json:"gender"`
	Location      string    `json:"location"`
	Website       string    `json:"website"`
	Linkedin      string    `json:"linkedin"`
	Github        string    `json:"github"`
	Theme         string    `json:"theme"`
	Language      string    `json:"language"`
	PublicProfile bool      `json:"public_profile"`
	ShowProgress  bool      `json:"show_progress"`

	EmailMessages      bool `json:"email_messages"`
	EmailCourseUpdates bool `json:"email_course_updates"`
	EmailMarketing     bool `json:"email_marketing"`
	PushNotifications  bool `json:"push_notifications"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Default returns the profile a new user starts with.
func Default(userID string) Profile {
	now := time.Now().UTC()
	return Profile{
		UserID:             userID,
		Theme:              "light",
		Language:           "pt-BR",
		PublicProfile:      true,
		ShowProgress:       true,
		EmailMessages:      true,
		EmailCourseUpdates: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

type UpdateProfile struct {
	Bio       string `json:"bio"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female other"`
	Location  string `json:"location"`
	Website   string `json:"website" validate:"omitempty,url"`
	Linkedin  string `json:"linkedin" validate:"omitempty,url"`
	Github    string `json:"github" validate:"omitempty,url"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Bio = core.CleanString(up.Bio)
	up.Phone = core.CleanString(up.Phone)
	up.BirthDate = core.CleanString(up.BirthDate)
	up.Gender = core.CleanString(up.Gender, true /* lower */)
	up.Location = core.CleanString(up.Location)
	up.Website = core.CleanString(up.Website)
	up.Linkedin = core.CleanString(up.Linkedin)
	up.Github = core.CleanString(up.Github)
	return validate.Struct(up)
}

type UpdatePreferences struct {
	Theme         string `json:"theme" validate:"omitempty,oneof=light dark auto"`
	Language      string `json:"language" validate:"omitempty,oneof=pt-BR en es"`
	PublicProfile *bool  `json:"public_profile"`
	ShowProgress  *bool  `json:"show_progress"`
}

func (up *UpdatePreferences) Validate(validate *validator.Validate) error {
	up.Theme = core.CleanString(up.Theme, true /* lower */)
	up.Language = core.CleanString(up.Language)
	return validate.Struct(up)
}

// UpdateNotifications replaces every notification flag; a missing flag means off.
type UpdateNotifications struct {
	EmailMessages      bool `json:"email_messages"`
	EmailCourseUpdates bool `json:"email_course_updates"`
	EmailMarketing     bool `json:"email_marketing"`
	PushNotifications  bool `json:"push_notifications"`
}

type (
	Repository interface {
		CreateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		GetProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error)
		UpdateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate returns the profile of userID, creating the default one on first access.
func (svc *Service) GetOrCreate(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, userID, exec...)
	if err == nil {
		return p, nil
	}
	if !core.IsNotFound(err) {
		return Profile{}, errors.Wrap(err, "getting profile")
	}
	p, err = svc.repo.CreateProfile(ctx, Default(userID), exec...)
	return p, errors.Wrap(err, "creating profile")
}

func (svc *Service) Update(ctx context.Context, userID string, up UpdateProfile) (Profile, error) {
	p, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p.Bio = up.Bio
	p.Phone = up.Phone
	p.Gender = up.Gender
	p.Location = up.Location
	p.Website = up.Website
	p.Linkedin = up.Linkedin
	p.Github = up.Github
	p.BirthDate = null.Time{}
	if up.BirthDate != "" {
		if bd, err := time.Parse("2006-01-02", up.BirthDate); err == nil {
			p.BirthDate = null.TimeFrom(bd)
		}
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateProfile(ctx, p)
}

func (svc *Service) UpdatePreferences(ctx context.Context, userID string, up UpdatePreferences) (Profile, error) {
	p, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if up.Theme != "" {
		p.Theme = up.Theme
	}
	if up.Language != "" {
		p.Language = up.Language
	}
	if up.PublicProfile != nil {
		p.PublicProfile = *up.PublicProfile
	}
	if up.ShowProgress != nil {
		p.ShowProgress = *up.ShowProgress
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateProfile(ctx, p)
}

func (svc *Service) UpdateNotifications(ctx context.Context, userID string, un UpdateNotifications) (Profile, error) {
	p, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p.EmailMessages = un.EmailMessages
	p.EmailCourseUpdates = un.EmailCourseUpdates
	p.EmailMarketing = un.EmailMarketing
	p.PushNotifications = un.PushNotifications
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateProfile(ctx, p)
}

// WantsCourseUpdates reports whether userID accepts course related emails.
func (svc *Service) WantsCourseUpdates(ctx context.Context, userID string) bool {
	p, err := svc.repo.GetProfile(ctx, userID)
	if err != nil {
		return true // default profile
	}
	return p.EmailCourseUpdates
}
