package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/profile"
)

const profileColumns = `user_id, bio, phone, birth_date, gender, location, website, linkedin, github, theme, language,
	public_profile, show_progress, email_messages, email_course_updates, email_marketing, push_notifications,
	created_at, updated_at`

type profileRepository struct {
	repository
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(exec core.DBExecutor) *profileRepository {
	return &profileRepository{repository{exec: exec}}
}

func (repo profileRepository) CreateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.Bio, p.Phone, p.BirthDate, p.Gender, p.Location, p.Website, p.Linkedin, p.Github, p.Theme,
		p.Language, p.PublicProfile, p.ShowProgress, p.EmailMessages, p.EmailCourseUpdates, p.EmailMarketing,
		p.PushNotifications, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return repo.GetProfile(ctx, p.UserID, exec...)
}

func (repo profileRepository) GetProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.Profile, error) {
	if !validID(userID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	var p profile.Profile
	err := sqlx.GetContext(ctx, repo.getExec(exec), &p, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return profile.Profile{}, trapNoRowsErr(err, profile.ErrNotFound, "finding profile")
	}
	return p, nil
}

func (repo profileRepository) UpdateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE profiles
		SET bio = $2, phone = $3, birth_date = $4, gender = $5, location = $6, website = $7, linkedin = $8,
		    github = $9, theme = $10, language = $11, public_profile = $12, show_progress = $13,
		    email_messages = $14, email_course_updates = $15, email_marketing = $16, push_notifications = $17,
		    updated_at = $18
		WHERE user_id = $1`,
		p.UserID, p.Bio, p.Phone, p.BirthDate, p.Gender, p.Location, p.Website, p.Linkedin, p.Github, p.Theme,
		p.Language, p.PublicProfile, p.ShowProgress, p.EmailMessages, p.EmailCourseUpdates, p.EmailMarketing,
		p.PushNotifications, p.UpdatedAt.UTC(),
	))
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "updating profile")
	}
	if n == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}
