package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/member"
)

var memberOrderingFields = []string{"name", "kind", "class", "email", "createdAt"}

type memberApi struct {
	svc      *member.Service
	validate *validator.Validate
}

func registerMemberAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc *member.Service, validate *validator.Validate) {
	api := memberApi{
		svc:      svc,
		validate: validate,
	}

	app.POST("/Member", api.create, jwt, adminMiddleware)
	app.GET("/Members/:schoolName", api.query, jwt, staffMiddleware, schoolMiddleware)
}

// Handlers

func (api *memberApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data member.NewMember
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if data.School == "" {
		data.School = claims.scope()
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if !claims.CanAccess(data.School) {
		return errHttpForbidden
	}

	mbr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, mbr)
}

func (api *memberApi) query(ctx echo.Context) error {
	var filter member.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.School = ctx.Param(schoolParam)
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, memberOrderingFields)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}
