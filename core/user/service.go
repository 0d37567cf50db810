package user

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/invigil/core"
)

var NowFunc = time.Now // mockable

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user", "")
	ErrCardIDTaken = errors.New("a user with this card id already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		// UpdateUser saves profile fields; the ledger counters are left untouched.
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if nu.CardID != "" {
		if _, err := svc.repo.GetUser(ctx, GetFilter{CardID: nu.CardID}); err == nil {
			return User{}, core.NewValidationError(ErrCardIDTaken, core.FieldError{Field: "card_id", Error: ErrCardIDTaken.Error()})
		} else if !core.IsNotFound(err) {
			return User{}, errors.Wrap(err, "checking card id")
		}
	}

	now := NowFunc().UTC()
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		CardID:     nu.CardID,
		Department: nu.Department,
		IsActive:   true,
		Roles:      nu.Roles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByCardID(ctx context.Context, cardID string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{CardID: core.CleanString(cardID)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

// MatchByName returns the lecturer whose name is most similar to name,
// provided the similarity ratio reaches minRatio.
func (svc *Service) MatchByName(ctx context.Context, name string, minRatio float64) (User, error) {
	name = normalizeName(name)
	if name == "" {
		return User{}, ErrNotFound
	}
	lecturers, err := svc.repo.QueryUsers(ctx, &QueryFilter{Roles: []string{RoleLecturer}}, nil)
	if err != nil {
		return User{}, errors.Wrap(err, "querying lecturers")
	}

	type candidate struct {
		usr   User
		ratio float64
	}
	cands := make([]candidate, 0, len(lecturers))
	for _, l := range lecturers {
		if r := NameSimilarity(name, l.Name); r >= minRatio {
			cands = append(cands, candidate{usr: l, ratio: r})
		}
	}
	if len(cands) == 0 {
		return User{}, core.NewNotFoundError("lecturer", name)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].ratio > cands[j].ratio })
	return cands[0].usr, nil
}

// NameSimilarity compares two names case-insensitively, ignoring honorifics.
func NameSimilarity(a, b string) float64 {
	a, b = StripHonorifics(a), StripHonorifics(b)
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

var honorifics = map[string]bool{
	"dr": true, "prof": true, "assoc": true, "ir": true, "ts": true,
	"mr": true, "mrs": true, "ms": true, "madam": true, "encik": true, "puan": true,
}

// StripHonorifics lowers name and drops academic and courtesy titles.
func StripHonorifics(name string) string {
	words := strings.Fields(strings.ToLower(name))
	kept := words[:0]
	for _, w := range words {
		if honorifics[strings.Trim(w, ".,")] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
