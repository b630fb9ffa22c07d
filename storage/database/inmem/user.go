package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/user"
)

func (db *DB) CheckUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.checkUniqueness(username, email, excludedUsers)
}

func (db *DB) checkUniqueness(username, email string, excludedUsers []user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	var emailTaken bool
	for _, usr := range db.users {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			emailTaken = true
		}
	}
	if emailTaken {
		return user.ErrEmailExists
	}
	return nil
}

func (db *DB) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if err := db.checkUniqueness(usr.Username, usr.Email, nil); err != nil {
		return user.User{}, err
	}
	usr.ID = newID()
	db.users[usr.ID] = usr
	return usr, nil
}

func (db *DB) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	users := make([]user.User, 0, len(db.users))
	for _, usr := range db.users {
		if filter != nil {
			if filter.Search != "" && !containsFold(usr.Name, filter.Search) &&
				!containsFold(usr.Username, filter.Search) && !containsFold(usr.Email, filter.Search) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
				continue
			}
			if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
				continue
			}
		}
		users = append(users, usr)
	}

	ord := core.DBOrdering{Field: "created_at"}
	if len(ordering) > 0 {
		ord = ordering[0]
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		var less bool
		switch ord.Field {
		case "name":
			less = a.Name < b.Name
		case "username":
			less = a.Username < b.Username
		case "email":
			less = a.Email < b.Email
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
	return users, nil
}

func (db *DB) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	var uname, email string
	if len(filter.UsernameOrEmail) > 0 {
		uname, email = filter.UsernameOrEmail[0], filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
		}
	}
	for _, usr := range db.users {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return usr, nil
			}
		case uname != "" || email != "":
			if usr.Username == uname || (usr.Email != "" && strings.EqualFold(usr.Email, email)) {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (db *DB) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, ok := db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := db.checkUniqueness(usr.Username, usr.Email, []user.User{usr}); err != nil {
		return user.User{}, err
	}
	db.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID also deletes the profiles and memberships of the users, and disowns their schools.
func (db *DB) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := db.users[id]; !ok {
			continue
		}
		delete(db.users, id)
		delete(db.profiles, id)
		for sid, s := range db.schools {
			if s.OwnerID == id {
				s.OwnerID = ""
				db.schools[sid] = s
			}
		}
		for mid, m := range db.members {
			if m.UserID == id {
				db.deleteMember(mid)
			}
		}
		n++
	}
	return n, nil
}
