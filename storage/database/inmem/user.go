package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/user"
)

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{base: base{db: db}}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.write(func(t *tables) error {
		if usr.ID == "" {
			usr.ID = uuid.New().String()
		}
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var found user.User
	err := repo.read(func(t *tables) error {
		if filter.ID != "" {
			usr, ok := t.users[filter.ID]
			if !ok || !matchesGet(usr, filter) {
				return user.ErrNotFound
			}
			found = usr
			return nil
		}
		for _, usr := range t.users {
			if matchesGet(usr, filter) {
				found = usr
				return nil
			}
		}
		return user.ErrNotFound
	})
	return found, err
}

func matchesGet(usr user.User, filter user.GetFilter) bool {
	if filter.ID == "" && filter.Email == "" && filter.CardID == "" {
		return false
	}
	if filter.ID != "" && usr.ID != filter.ID {
		return false
	}
	if filter.Email != "" && !strings.EqualFold(usr.Email, filter.Email) {
		return false
	}
	if filter.CardID != "" && usr.CardID != filter.CardID {
		return false
	}
	return true
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var users []user.User
	err := repo.read(func(t *tables) error {
		users = make([]user.User, 0, len(t.users))
		for _, usr := range t.users {
			if matchesQuery(usr, filter) {
				users = append(users, usr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUsers(users, ordering)
	return users, nil
}

func matchesQuery(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) && !strings.Contains(strings.ToLower(usr.Email), s) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var ok bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	return true
}

func sortUsers(users []user.User, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		for _, ord := range ordering {
			var less, greater bool
			switch ord.Field {
			case "email":
				less, greater = a.Email < b.Email, a.Email > b.Email
			case "created_at":
				less, greater = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
			case "cumulative_hours":
				less, greater = a.CumulativeHours < b.CumulativeHours, a.CumulativeHours > b.CumulativeHours
			case "pending_hours":
				less, greater = a.PendingHours < b.PendingHours, a.PendingHours > b.PendingHours
			default:
				less, greater = a.Name < b.Name, a.Name > b.Name
			}
			if less || greater {
				return less == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	var updated user.User
	err := repo.write(func(t *tables) error {
		orig, ok := t.users[usr.ID]
		if !ok {
			return user.ErrNotFound
		}
		orig.Name = usr.Name
		orig.Email = usr.Email
		orig.CardID = usr.CardID
		orig.Department = usr.Department
		orig.IsActive = usr.IsActive
		if usr.Roles != nil {
			orig.Roles = usr.Roles
		}
		orig.UpdatedAt = usr.UpdatedAt
		t.users[usr.ID] = orig
		updated = orig
		return nil
	})
	return updated, err
}
