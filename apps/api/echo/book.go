package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/library"
)

const bookParam = "bookId"

type bookApi struct {
	svc      *library.Service
	validate *validator.Validate
}

func registerBookAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc *library.Service, validate *validator.Validate) {
	api := bookApi{
		svc:      svc,
		validate: validate,
	}

	bg := app.Group("/Book", jwt)
	bg.POST("", api.create, staffMiddleware)
	bg.GET("/:bookId", api.retrieve)
	bg.PUT("/:bookId/quantity", api.setQuantity, staffMiddleware)
	bg.PUT("/:bookId/discontinue", api.discontinue, staffMiddleware)

	app.GET("/Books/:schoolName", api.query, jwt, schoolMiddleware)
}

// Handlers

func (api *bookApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data library.NewBook
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
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

	book, err := api.svc.CreateBook(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating book")
	}
	return ctx.JSON(http.StatusCreated, book)
}

func (api *bookApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	book, err := api.svc.GetBook(ctx.Request().Context(), claims.scope(), ctx.Param(bookParam))
	if err != nil {
		return errors.Wrap(err, "getting book")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *bookApi) setQuantity(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data library.SetQuantity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetQuantity")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	book, err := api.svc.SetBookQuantity(ctx.Request().Context(), claims.scope(), ctx.Param(bookParam), *data.Quantity)
	if err != nil {
		return errors.Wrap(err, "setting book quantity")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *bookApi) discontinue(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	book, err := api.svc.DiscontinueBook(ctx.Request().Context(), claims.scope(), ctx.Param(bookParam))
	if err != nil {
		return errors.Wrap(err, "discontinuing book")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *bookApi) query(ctx echo.Context) error {
	var filter library.BookFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to BookFilter")
	}
	filter.School = ctx.Param(schoolParam)
	ordering := new(Ordering)
	ordering.Bind(ctx, library.BookOrderingFields)

	books, err := api.svc.QueryBooks(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying books")
	}
	if books == nil {
		books = []library.Book{}
	}
	return ctx.JSON(http.StatusOK, books)
}
