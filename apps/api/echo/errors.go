package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
)

var (
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "member not authenticated")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound     = echo.NewHTTPError(http.StatusNotFound, "not found")
	errInvalidParameter = "invalid value"
)

// isBadRequest reports whether err is a ledger rule violation answered with 400 Bad Request.
func isBadRequest(err error) bool {
	switch err {
	case library.ErrUnavailable,
		library.ErrDuplicateLoan,
		library.ErrAlreadyReturned,
		library.ErrInvalidBorrower,
		library.ErrNotUnderReview,
		library.ErrDuplicateISBN,
		library.ErrQuantityBelowActive:
		return true
	}
	return false
}

// errorResponse is the body of every error response.
type errorResponse struct {
	Message string      `json:"message"`
	Fields  interface{} `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var resp errorResponse

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				resp.Message = toString(origErr.Message)
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			resp.Message = toString(origErr.Message)
		case *library.MissingFieldError:
			code = http.StatusBadRequest
			resp.Message = origErr.Error()
			resp.Fields = origErr.Fields
		case *library.NotFoundError:
			code = http.StatusNotFound
			resp.Message = origErr.Error()
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Message = "invalid input"
			resp.Fields = fldErrs
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp.Message = origErr.Error()
			if origErr.Fields != nil {
				resp.Fields = origErr.FieldMap()
			}
		default:
			if isBadRequest(origErr) {
				code = http.StatusBadRequest
				resp.Message = origErr.Error()
				break
			}
			if origErr == member.ErrNotFound {
				code = http.StatusNotFound
				resp.Message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp.Message = msg

			var mbr member.Member
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				mbr.ID = claims.Subject
				mbr.School = claims.School
				mbr.Kind = claims.Kind
			}
			logger.Error(msg, errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}, mbr)

			if ctx.Echo().Debug {
				resp.Message = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func toString(msg interface{}) string {
	if s, ok := msg.(string); ok {
		return s
	}
	if err, ok := msg.(error); ok {
		return err.Error()
	}
	return http.StatusText(http.StatusInternalServerError)
}
