package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/services/spreadsheet"
)

type scheduleApi struct {
	svc      *schedule.Service
	validate *validator.Validate
}

func registerVenueAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := scheduleApi{svc: deps.ScheduleSvc, validate: deps.Validate}

	vg := g.Group("/venues", jwt)
	vg.GET("", api.queryVenues)
	vg.POST("", api.createVenue, adminMiddleware())
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := scheduleApi{svc: deps.ScheduleSvc, validate: deps.Validate}

	eg := g.Group("/exams", jwt, adminMiddleware())
	eg.POST("", api.createExam)
	eg.GET("", api.queryExams)
	eg.POST("/import", api.importExams)
	eg.GET("/reminders", api.pendingOffers)

	// detail endpoints
	dg := eg.Group("/:id")
	dg.GET("", api.retrieveExam)
	dg.PUT("/schedule", api.adjustExam)
	dg.POST("/reset", api.resetExam)
	dg.DELETE("", api.deleteExam)

	g.POST("/reports/:id/reassign", api.reassign, jwt, adminMiddleware())
	g.POST("/card-events", api.recordCardEvent, jwt, adminMiddleware())
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := scheduleApi{svc: deps.ScheduleSvc, validate: deps.Validate}

	ag := g.Group("/assignments/:id", jwt)
	ag.GET("", api.retrieveAssignment)
	ag.PUT("/attendance", api.editAttendance, adminMiddleware())
	ag.POST("/response", api.respond)
}

// Venues

func (api *scheduleApi) createVenue(ctx echo.Context) error {
	var data schedule.Venue
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Venue")
	}
	v, err := api.svc.CreateVenue(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating venue")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *scheduleApi) queryVenues(ctx echo.Context) error {
	venues, err := api.svc.QueryVenues(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying venues")
	}
	return ctx.JSON(http.StatusOK, venues)
}

// Exams

func (api *scheduleApi) createExam(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data schedule.NewExam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	detail, err := api.svc.CreateExamAndRelated(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, detail)
}

func (api *scheduleApi) queryExams(ctx echo.Context) error {
	filter, err := bindExamFilter(ctx)
	if err != nil {
		return err
	}
	exams, err := api.svc.QueryExams(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []schedule.Exam{}
	}
	return ctx.JSON(http.StatusOK, exams)
}

func (api *scheduleApi) retrieveExam(ctx echo.Context) error {
	detail, err := api.svc.GetExam(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *scheduleApi) adjustExam(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data schedule.Slot
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Slot")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	detail, err := api.svc.AdjustExam(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adjusting exam")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *scheduleApi) resetExam(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	exam, err := api.svc.ResetExamRelations(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resetting exam")
	}
	return ctx.JSON(http.StatusOK, exam)
}

func (api *scheduleApi) deleteExam(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteExam(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// importExams schedules the exams of an uploaded xlsx sheet ("file"), row times read in "tz".
func (api *scheduleApi) importExams(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	loc := time.UTC
	if tz := ctx.FormValue("tz"); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return core.NewFieldValidationError("tz", "unknown time zone")
		}
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldValidationError("file", "this field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	rows, err := spreadsheet.ReadExamRows(f)
	if err != nil {
		return errors.Wrap(err, "reading exam sheet")
	}
	res := api.svc.ImportExams(ctx.Request().Context(), actor, rows, loc)
	return ctx.JSON(http.StatusOK, res)
}

// pendingOffers previews the reminder digests the next sweep would send.
func (api *scheduleApi) pendingOffers(ctx echo.Context) error {
	window := api.svc.Config().ReminderWindow
	if raw := ctx.QueryParam("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return core.NewFieldValidationError("window", "must be a positive duration")
		}
		window = d
	}
	digests, err := api.svc.PendingOfferDigests(ctx.Request().Context(), schedule.NowFunc(), window)
	if err != nil {
		return errors.Wrap(err, "collecting pending offers")
	}
	return ctx.JSON(http.StatusOK, digests)
}

// Reports & assignments

type reassignRequest struct {
	// Mapping maps assignment ids to their new invigilator ids.
	Mapping map[string]string `json:"mapping" validate:"required,min=1"`
}

func (api *scheduleApi) reassign(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data reassignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to reassignRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	detail, err := api.svc.Reassign(ctx.Request().Context(), actor, ctx.Param("id"), data.Mapping)
	if err != nil {
		return errors.Wrap(err, "reassigning")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *scheduleApi) retrieveAssignment(ctx echo.Context) error {
	asg, err := api.svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	if err = selfOrAdmin(ctx, asg.InvigilatorID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *scheduleApi) editAttendance(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data schedule.AttendanceEdit
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceEdit")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	asg, err := api.svc.EditAttendance(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing attendance")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *scheduleApi) respond(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	asg, err := api.svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	if err = selfOrAdmin(ctx, asg.InvigilatorID); err != nil {
		return err
	}

	var data schedule.OfferResponse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OfferResponse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	asg, err = api.svc.RespondToOffer(ctx.Request().Context(), actor, asg.ID, data)
	if err != nil {
		return errors.Wrap(err, "responding to offer")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *scheduleApi) recordCardEvent(ctx echo.Context) error {
	var data schedule.CardEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CardEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.RecordCardEvent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording card event")
	}
	return ctx.JSON(http.StatusOK, res)
}
