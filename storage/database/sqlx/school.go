package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/school"
)

const (
	schoolColumns = `id, name, slug, COALESCE(owner_id::text, '') AS owner_id, email, telephone, slogan, theme,
		primary_color, secondary_color, theme_mode, created_at`
	memberColumns       = `su.id, su.school_id, su.user_id, su.role, su.credits, su.phone, su.created_at`
	memberDetailColumns = memberColumns + `, u.name, u.username, u.email, u.is_active`
)

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{repository{exec: exec}}
}

func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

func (repo schoolRepository) CreateSchool(ctx context.Context, s school.School, exec ...core.DBExecutor) (school.School, error) {
	s.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO schools (id, name, slug, owner_id, email, telephone, slogan, theme, primary_color,
		                     secondary_color, theme_mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.Name, s.Slug, nullableID(s.OwnerID), s.Email, s.Telephone, s.Slogan, s.Theme, s.PrimaryColor,
		s.SecondaryColor, s.ThemeMode, s.CreatedAt.UTC(),
	)
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return s, nil
}

func (repo schoolRepository) SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &found, `SELECT EXISTS(SELECT 1 FROM schools WHERE slug = $1)`, slug)
	return found, errors.Wrap(err, "checking school slug")
}

func (repo schoolRepository) GetSchool(ctx context.Context, filter school.GetFilter, exec ...core.DBExecutor) (school.School, error) {
	q := `SELECT ` + schoolColumns + ` FROM schools WHERE `
	var arg string
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return school.School{}, school.ErrNotFound
		}
		q, arg = q+"id = $1", filter.ID
	case filter.Slug != "":
		q, arg = q+"slug = $1", filter.Slug
	default:
		return school.School{}, school.ErrNotFound
	}

	var s school.School
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &s, q, arg); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return s, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, exec ...core.DBExecutor) ([]school.School, error) {
	schools := []school.School{}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &schools, `SELECT `+schoolColumns+` FROM schools ORDER BY name`)
	return schools, errors.Wrap(err, "querying schools")
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, s school.School, exec ...core.DBExecutor) (school.School, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE schools
		SET name = $2, email = $3, telephone = $4, slogan = $5, theme = $6, primary_color = $7,
		    secondary_color = $8, theme_mode = $9
		WHERE id = $1`,
		s.ID, s.Name, s.Email, s.Telephone, s.Slogan, s.Theme, s.PrimaryColor, s.SecondaryColor, s.ThemeMode,
	))
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return s, nil
}

func (repo schoolRepository) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return school.ErrNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM schools WHERE id = $1`, id)
	return errors.Wrap(err, "deleting school")
}

// Members

func (repo schoolRepository) CreateMember(ctx context.Context, m school.Member, exec ...core.DBExecutor) (school.Member, error) {
	m.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO school_users (id, school_id, user_id, role, credits, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SchoolID, m.UserID, m.Role, m.Credits, m.Phone, m.CreatedAt.UTC(),
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return school.Member{}, school.ErrAlreadyMember
		}
		return school.Member{}, errors.Wrap(err, "inserting member")
	}
	return m, nil
}

func (repo schoolRepository) GetMember(ctx context.Context, filter school.MemberGetFilter, exec ...core.DBExecutor) (school.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM school_users su WHERE `
	var args []interface{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return school.Member{}, school.ErrMemberNotFound
		}
		q += "su.id = $1"
		args = append(args, filter.ID)
	case filter.SchoolID != "" && filter.UserID != "":
		if !validID(filter.SchoolID) || !validID(filter.UserID) {
			return school.Member{}, school.ErrMemberNotFound
		}
		q += "su.school_id = $1 AND su.user_id = $2"
		args = append(args, filter.SchoolID, filter.UserID)
	default:
		return school.Member{}, school.ErrMemberNotFound
	}

	var m school.Member
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &m, q, args...); err != nil {
		return school.Member{}, trapNoRowsErr(err, school.ErrMemberNotFound, "finding member")
	}
	return m, nil
}

func (repo schoolRepository) GetMemberDetail(ctx context.Context, id string, exec ...core.DBExecutor) (school.MemberDetail, error) {
	if !validID(id) {
		return school.MemberDetail{}, school.ErrMemberNotFound
	}
	var md school.MemberDetail
	err := sqlx.GetContext(ctx, repo.getExec(exec), &md, `
		SELECT `+memberDetailColumns+`
		FROM school_users su JOIN users u ON u.id = su.user_id
		WHERE su.id = $1`, id)
	if err != nil {
		return school.MemberDetail{}, trapNoRowsErr(err, school.ErrMemberNotFound, "finding member detail")
	}
	return md, nil
}

func memberWhere(schoolID string, filter school.MemberFilter) (string, []interface{}) {
	where := []string{"su.school_id = ?"}
	args := []interface{}{schoolID}
	switch filter.Kind {
	case school.FilterStudents:
		where = append(where, "su.role = ?")
		args = append(args, school.RoleStudent)
	case school.FilterTeachers:
		where = append(where, "su.role = ?")
		args = append(args, school.RoleTeacher)
	case school.FilterAdmins:
		where = append(where, "su.role = ?")
		args = append(args, school.RoleAdmin)
	case school.FilterInactive:
		where = append(where, "u.is_active = false")
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where = append(where, "(u.name ILIKE ? OR u.username ILIKE ? OR u.email ILIKE ?)")
		args = append(args, val, val, val)
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (repo schoolRepository) QueryMembers(ctx context.Context, schoolID string, filter school.MemberFilter, page core.Page, exec ...core.DBExecutor) ([]school.MemberDetail, int, error) {
	if !validID(schoolID) {
		return []school.MemberDetail{}, 0, nil
	}
	total, err := repo.CountMembers(ctx, schoolID, filter, exec...)
	if err != nil {
		return nil, 0, err
	}

	exe := repo.getExec(exec)
	where, args := memberWhere(schoolID, filter)
	q := `SELECT ` + memberDetailColumns + ` FROM school_users su JOIN users u ON u.id = su.user_id` + where +
		` ORDER BY su.created_at DESC, su.id LIMIT ? OFFSET ?`
	args = append(args, page.Size, page.Offset())

	members := []school.MemberDetail{}
	if err = sqlx.SelectContext(ctx, exe, &members, exe.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying members")
	}
	return members, total, nil
}

func (repo schoolRepository) CountMembers(ctx context.Context, schoolID string, filter school.MemberFilter, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) {
		return 0, nil
	}
	exe := repo.getExec(exec)
	where, args := memberWhere(schoolID, filter)
	var total int
	err := sqlx.GetContext(ctx, exe, &total,
		exe.Rebind(`SELECT COUNT(*) FROM school_users su JOIN users u ON u.id = su.user_id`+where), args...)
	return total, errors.Wrap(err, "counting members")
}

func (repo schoolRepository) QueryMemberships(ctx context.Context, userID string, exec ...core.DBExecutor) ([]school.Member, error) {
	members := []school.Member{}
	if !validID(userID) {
		return members, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &members,
		`SELECT `+memberColumns+` FROM school_users su WHERE su.user_id = $1 ORDER BY su.created_at`, userID)
	return members, errors.Wrap(err, "querying memberships")
}

func (repo schoolRepository) UpdateMember(ctx context.Context, m school.Member, exec ...core.DBExecutor) (school.Member, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE school_users SET role = $2, credits = $3, phone = $4 WHERE id = $1`,
		m.ID, m.Role, m.Credits, m.Phone,
	))
	if err != nil {
		return school.Member{}, errors.Wrap(err, "updating member")
	}
	if n == 0 {
		return school.Member{}, school.ErrMemberNotFound
	}
	return m, nil
}

func (repo schoolRepository) DeleteMember(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return school.ErrMemberNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM school_users WHERE id = $1`, id)
	return errors.Wrap(err, "deleting member")
}
