package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/invigil/core"
)

// Roles
const (
	RoleAdmin       = "admin:"
	RoleInvigilator = "invigilator:"
	RoleLecturer    = "lecturer:"
)

var AllRoles = []string{RoleAdmin, RoleInvigilator, RoleLecturer}

type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	CardID     string   `json:"card_id"`
	Department string   `json:"department"`
	IsActive   bool     `json:"is_active"`
	Roles      []string `json:"roles"`

	// ledger: only ever mutated through the schedule engine
	CumulativeHours float64 `json:"cumulative_hours"`
	PendingHours    float64 `json:"pending_hours"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool       { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsInvigilator() bool { return u.RoleStartsWith(RoleInvigilator) }
func (u *User) IsLecturer() bool    { return u.RoleStartsWith(RoleLecturer) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name       string   `json:"name" validate:"required"`
	Email      string   `json:"email" validate:"omitempty,email"`
	CardID     string   `json:"card_id" validate:"omitempty,alphanum"`
	Department string   `json:"department"`
	Roles      []string `json:"roles" validate:"required,dive,oneof=admin: invigilator: lecturer:"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = normalizeName(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.CardID = core.CleanString(nu.CardID)
	nu.Department = core.CleanString(nu.Department)
	return validate.Struct(nu)
}

type GetFilter struct {
	ID     string
	Email  string
	CardID string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

func normalizeName(name string) string {
	return core.SquashSpaces(name)
}
