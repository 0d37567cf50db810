package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
)

type userApi struct {
	svc      *user.Service
	schedule *schedule.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{svc: deps.UserSvc, schedule: deps.ScheduleSvc, validate: deps.Validate}

	ug := g.Group("/users", jwt)
	ug.POST("", api.create, adminMiddleware())
	ug.GET("", api.query, adminMiddleware())
	ug.GET("/me", api.me)

	// detail endpoints
	dg := ug.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/account", api.account)
	dg.GET("/duties", api.duties)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) me(ctx echo.Context) error {
	id, err := actorID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := selfOrAdmin(ctx, id); err != nil {
		return err
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) account(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := selfOrAdmin(ctx, id); err != nil {
		return err
	}
	acc, err := api.schedule.Account(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *userApi) duties(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := selfOrAdmin(ctx, id); err != nil {
		return err
	}
	duties, err := api.schedule.Duties(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting duties")
	}
	if duties == nil {
		duties = []schedule.Duty{}
	}
	return ctx.JSON(http.StatusOK, duties)
}
