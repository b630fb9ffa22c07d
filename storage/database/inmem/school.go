package inmemdb

import (
	"context"
	"sort"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
)

// Schools

func (db *DB) CreateSchool(ctx context.Context, s school.School, exec ...core.DBExecutor) (school.School, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	s.ID = newID()
	db.schools[s.ID] = s
	return s, nil
}

func (db *DB) SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, s := range db.schools {
		if s.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) GetSchool(ctx context.Context, filter school.GetFilter, exec ...core.DBExecutor) (school.School, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, s := range db.schools {
		if (filter.ID != "" && s.ID == filter.ID) || (filter.ID == "" && filter.Slug != "" && s.Slug == filter.Slug) {
			return s, nil
		}
	}
	return school.School{}, school.ErrNotFound
}

func (db *DB) QuerySchools(ctx context.Context, exec ...core.DBExecutor) ([]school.School, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	schools := make([]school.School, 0, len(db.schools))
	for _, s := range db.schools {
		schools = append(schools, s)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}

func (db *DB) UpdateSchool(ctx context.Context, s school.School, exec ...core.DBExecutor) (school.School, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.schools[s.ID]
	if !ok {
		return school.School{}, school.ErrNotFound
	}
	// slug, owner and creation date are immutable
	s.Slug, s.OwnerID, s.CreatedAt = orig.Slug, orig.OwnerID, orig.CreatedAt
	db.schools[s.ID] = s
	return s, nil
}

func (db *DB) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.schools[id]; !ok {
		return school.ErrNotFound
	}
	db.deleteSchool(id)
	return nil
}

// Members

func (db *DB) CreateMember(ctx context.Context, m school.Member, exec ...core.DBExecutor) (school.Member, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, other := range db.members {
		if other.SchoolID == m.SchoolID && other.UserID == m.UserID {
			return school.Member{}, school.ErrAlreadyMember
		}
	}
	m.ID = newID()
	db.members[m.ID] = m
	return m, nil
}

func (db *DB) GetMember(ctx context.Context, filter school.MemberGetFilter, exec ...core.DBExecutor) (school.Member, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if filter.ID != "" {
		if m, ok := db.members[filter.ID]; ok {
			return m, nil
		}
		return school.Member{}, school.ErrMemberNotFound
	}
	if filter.SchoolID != "" && filter.UserID != "" {
		for _, m := range db.members {
			if m.SchoolID == filter.SchoolID && m.UserID == filter.UserID {
				return m, nil
			}
		}
	}
	return school.Member{}, school.ErrMemberNotFound
}

func (db *DB) memberDetail(m school.Member) school.MemberDetail {
	usr := db.users[m.UserID]
	return school.MemberDetail{
		Member:   m,
		Name:     usr.Name,
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: usr.IsActive,
	}
}

func (db *DB) GetMemberDetail(ctx context.Context, id string, exec ...core.DBExecutor) (school.MemberDetail, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	m, ok := db.members[id]
	if !ok {
		return school.MemberDetail{}, school.ErrMemberNotFound
	}
	return db.memberDetail(m), nil
}

func (db *DB) filterMembers(schoolID string, filter school.MemberFilter) []school.MemberDetail {
	members := make([]school.MemberDetail, 0)
	for _, m := range db.members {
		if m.SchoolID != schoolID {
			continue
		}
		md := db.memberDetail(m)
		switch filter.Kind {
		case school.FilterStudents:
			if !m.IsStudent() {
				continue
			}
		case school.FilterTeachers:
			if !m.IsTeacher() {
				continue
			}
		case school.FilterAdmins:
			if !m.IsAdmin() {
				continue
			}
		case school.FilterInactive:
			if md.IsActive {
				continue
			}
		}
		if filter.Search != "" && !containsFold(md.Name, filter.Search) &&
			!containsFold(md.Username, filter.Search) && !containsFold(md.Email, filter.Search) {
			continue
		}
		members = append(members, md)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.After(members[j].CreatedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members
}

func (db *DB) QueryMembers(ctx context.Context, schoolID string, filter school.MemberFilter, page core.Page, exec ...core.DBExecutor) ([]school.MemberDetail, int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	members := db.filterMembers(schoolID, filter)
	total := len(members)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := total
	if page.Size > 0 && start+page.Size < total {
		end = start + page.Size
	}
	return members[start:end], total, nil
}

func (db *DB) CountMembers(ctx context.Context, schoolID string, filter school.MemberFilter, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.filterMembers(schoolID, filter)), nil
}

func (db *DB) QueryMemberships(ctx context.Context, userID string, exec ...core.DBExecutor) ([]school.Member, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	members := make([]school.Member, 0)
	for _, m := range db.members {
		if m.UserID == userID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

func (db *DB) UpdateMember(ctx context.Context, m school.Member, exec ...core.DBExecutor) (school.Member, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.members[m.ID]
	if !ok {
		return school.Member{}, school.ErrMemberNotFound
	}
	orig.Role, orig.Credits, orig.Phone = m.Role, m.Credits, m.Phone
	db.members[m.ID] = orig
	return orig, nil
}

func (db *DB) DeleteMember(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.members[id]; !ok {
		return school.ErrMemberNotFound
	}
	db.deleteMember(id)
	return nil
}

// Profiles

func (db *DB) CreateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if existing, ok := db.profiles[p.UserID]; ok {
		return existing, nil
	}
	db.profiles[p.UserID] = p
	return p, nil
}

func (db *DB) GetProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.Profile, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if p, ok := db.profiles[userID]; ok {
		return p, nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (db *DB) UpdateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.profiles[p.UserID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	p.CreatedAt = orig.CreatedAt
	db.profiles[p.UserID] = p
	return p, nil
}
