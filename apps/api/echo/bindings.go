package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads ?ordering=name,-created_at; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	var f user.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		String("search", &f.Search).
		Strings("role", &f.Roles).
		BindError()
	if err != nil {
		return nil, core.NewValidationError(err)
	}
	if f.IsActive, err = boolParam(ctx, "is_active"); err != nil {
		return nil, err
	}
	f.Clean()
	return &f, nil
}

func bindExamFilter(ctx echo.Context) (*schedule.ExamFilter, error) {
	var f schedule.ExamFilter
	err := echo.QueryParamsBinder(ctx).
		String("course_id", &f.CourseID).
		Time("from", &f.From, time.RFC3339).
		Time("to", &f.To, time.RFC3339).
		BindError()
	if err != nil {
		return nil, core.NewValidationError(err)
	}
	if f.Active, err = boolParam(ctx, "active"); err != nil {
		return nil, err
	}
	return &f, nil
}

// boolParam returns nil when the query param is absent.
func boolParam(ctx echo.Context, name string) (*bool, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, core.NewFieldValidationError(name, "must be a boolean")
	}
	return &b, nil
}
