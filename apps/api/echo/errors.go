package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var (
			httpErr     *echo.HTTPError
			fieldErrs   validator.ValidationErrors
			validErr    *core.ValidationError
			notFoundErr *core.NotFoundError
			conflictErr *core.ConflictError
			windowErr   *core.OutOfWindowError
			orderErr    *core.OrderingError
			gapErr      *core.InsufficientGapError
		)
		switch {
		case errors.As(err, &httpErr):
			if httpErr.Internal != nil {
				if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = herr
				}
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &fieldErrs):
			flds := make(map[string]string, len(fieldErrs))
			for _, fErr := range fieldErrs {
				flds[fErr.Field()] = fErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = flds
		case errors.As(err, &validErr):
			if len(validErr.Fields) > 0 {
				flds := make(map[string]string, len(validErr.Fields))
				for _, fErr := range validErr.Fields {
					flds[fErr.Field] = fErr.Error
				}
				message = flds
			} else {
				message = validErr.Error()
			}
			code = http.StatusBadRequest
		case errors.As(err, &notFoundErr):
			code = http.StatusNotFound
			message = notFoundErr.Error()
		case errors.As(err, &conflictErr):
			code = http.StatusConflict
			message = echo.Map{"error": conflictErr.Kind.Error(), "entity": conflictErr.Entity, "id": conflictErr.ID}
		case errors.As(err, &gapErr):
			code = http.StatusUnprocessableEntity
			message = echo.Map{"error": gapErr.Error(), "exam_id": gapErr.ExamID}
		case errors.As(err, &windowErr), errors.As(err, &orderErr):
			code = http.StatusUnprocessableEntity
			message = errors.Cause(err).Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			extra := map[string]interface{}{"path": ctx.Path(), "method": ctx.Request().Method}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				extra["actor"] = claims.Subject
			}
			logger.Error(msg, errors.Wrap(err, msg), extra)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
