package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/user"
)

const userTable = `"user"`

var userColumns = []string{
	"id", "name", "email", "card_id", "department", "is_active", "roles",
	"cumulative_hours", "pending_hours", "created_at", "updated_at",
}

// sortable user columns
var userOrderings = map[string]bool{
	"name": true, "email": true, "created_at": true, "cumulative_hours": true, "pending_hours": true,
}

type userRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Email           null.String    `db:"email"`
	CardID          null.String    `db:"card_id"`
	Department      null.String    `db:"department"`
	IsActive        bool           `db:"is_active"`
	Roles           pq.StringArray `db:"roles"`
	CumulativeHours float64        `db:"cumulative_hours"`
	PendingHours    float64        `db:"pending_hours"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:              usr.ID,
		Name:            usr.Name,
		Email:           null.NewString(usr.Email, usr.Email != ""),
		CardID:          null.NewString(usr.CardID, usr.CardID != ""),
		Department:      null.NewString(usr.Department, usr.Department != ""),
		IsActive:        usr.IsActive,
		Roles:           roles,
		CumulativeHours: usr.CumulativeHours,
		PendingHours:    usr.PendingHours,
		CreatedAt:       usr.CreatedAt.UTC(),
		UpdatedAt:       usr.UpdatedAt.UTC(),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email.String,
		CardID:          r.CardID.String,
		Department:      r.Department.String,
		IsActive:        r.IsActive,
		Roles:           r.Roles,
		CumulativeHours: r.CumulativeHours,
		PendingHours:    r.PendingHours,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func unrowUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{base: base{db: db}}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID(usr.ID)
	r := toUserRow(usr)
	q := psql.Insert(userTable).Columns(userColumns...).Values(
		r.ID, r.Name, r.Email, r.CardID, r.Department, r.IsActive, r.Roles,
		r.CumulativeHours, r.PendingHours, r.CreatedAt, r.UpdatedAt,
	)
	if _, err := repo.exec(ctx, q); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewValidationError(user.ErrCardIDTaken,
				core.FieldError{Field: "card_id", Error: user.ErrCardIDTaken.Error()})
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return r.user(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := psql.Select(userColumns...).From(userTable)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		q = q.Where("lower(email) = lower(?)", filter.Email)
	case filter.CardID != "":
		q = q.Where(sq.Eq{"card_id": filter.CardID})
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	if err := repo.get(ctx, &r, q.Limit(1)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return r.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := psql.Select(userColumns...).From(userTable)

	if filter != nil {
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"email": val}})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			patterns := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, role+"%")
			}
			q = q.Where("EXISTS (SELECT 1 FROM unnest(roles) AS user_role WHERE user_role ILIKE ANY (?))", pq.Array(patterns))
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	q = q.OrderBy(userOrderBy(ordering)...)

	var rows []userRow
	if err := repo.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return unrowUsers(rows), nil
}

func userOrderBy(ordering []core.DBOrdering) []string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderings[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "name ASC")
	}
	return append(orderList, "id ASC")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	r := toUserRow(usr)
	q := psql.Update(userTable).
		Set("name", r.Name).
		Set("email", r.Email).
		Set("card_id", r.CardID).
		Set("department", r.Department).
		Set("is_active", r.IsActive).
		Set("updated_at", r.UpdatedAt).
		Where(sq.Eq{"id": r.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if usr.Roles != nil {
		q = q.Set("roles", r.Roles)
	}

	var updated userRow
	if err := repo.get(ctx, &updated, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		if isUniqueViolation(err) {
			return user.User{}, core.NewValidationError(user.ErrCardIDTaken,
				core.FieldError{Field: "card_id", Error: user.ErrCardIDTaken.Error()})
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated.user(), nil
}
