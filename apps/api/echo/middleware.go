package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const schoolParam = "schoolName"

// staffMiddleware only lets teachers and librarians through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsStaff() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin && claims.IsStaff() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// schoolMiddleware guards routes scoped by the `schoolName` path parameter.
func schoolMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.CanAccess(ctx.Param(schoolParam)) {
			return next(ctx)
		}
		return errHttpForbidden
	}
}
