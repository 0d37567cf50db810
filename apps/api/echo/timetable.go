package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/timetable"
)

type timetableApi struct {
	svc      *timetable.Service
	validate *validator.Validate
}

func registerTimetableAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := timetableApi{svc: deps.TimetableSvc, validate: deps.Validate}

	tg := g.Group("/timetables", jwt)
	tg.GET("", api.query)
	tg.POST("", api.importMany, adminMiddleware())
}

type timetableImportRequest struct {
	Documents []timetable.Source `json:"documents" validate:"required,min=1,dive"`
}

func (api *timetableApi) importMany(ctx echo.Context) error {
	var data timetableImportRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to timetableImportRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	res := api.svc.ImportMany(ctx.Request().Context(), data.Documents)
	return ctx.JSON(http.StatusOK, res)
}

func (api *timetableApi) query(ctx echo.Context) error {
	var filter timetable.RowFilter
	err := echo.QueryParamsBinder(ctx).
		String("lecturer", &filter.Lecturer).
		String("course_code", &filter.CourseCode).
		String("section", &filter.Section).
		String("intake", &filter.Intake).
		BindError()
	if err != nil {
		return core.NewValidationError(err)
	}

	rows, err := api.svc.Rows(ctx.Request().Context(), &filter)
	if err != nil {
		return errors.Wrap(err, "querying timetable rows")
	}
	if rows == nil {
		rows = []timetable.Row{}
	}
	return ctx.JSON(http.StatusOK, rows)
}
