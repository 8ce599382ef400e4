package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/library"
)

const loanParam = "loanId"

type loanApi struct {
	svc      *library.Service
	validate *validator.Validate
}

func registerLoanAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc *library.Service, validate *validator.Validate) {
	api := loanApi{
		svc:      svc,
		validate: validate,
	}

	lg := app.Group("/BookLoan", jwt)
	lg.POST("/issue", api.issue, staffMiddleware)
	lg.GET("/:loanId", api.retrieve)
	lg.PUT("/:loanId/return", api.returnLoan, staffMiddleware)
	lg.PUT("/:loanId/review", api.review, adminMiddleware)
	lg.DELETE("/:loanId", api.destroy, staffMiddleware)

	sg := app.Group("/BookLoans", jwt)
	sg.GET("/:schoolName", api.query, schoolMiddleware)
	sg.GET("/overdue/:schoolName", api.queryOverdue, schoolMiddleware)

	// repairs
	sg.POST("/:schoolName/fix-availability", api.fixAvailability, adminMiddleware, schoolMiddleware)
	sg.POST("/:schoolName/restore-availability", api.restoreAvailability, adminMiddleware, schoolMiddleware)
	sg.POST("/:schoolName/cleanup", api.cleanup, adminMiddleware, schoolMiddleware)
	sg.POST("/migrate/:schoolName", api.migrateStaffLoans, adminMiddleware, schoolMiddleware)
}

// Handlers

func (api *loanApi) issue(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data library.IssueLoan
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IssueLoan")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if data.IssuedBy == "" {
		data.IssuedBy = claims.Subject
	}

	loan, err := api.svc.Issue(ctx.Request().Context(), claims.scope(), data)
	if err != nil {
		return errors.Wrap(err, "issuing loan")
	}
	return ctx.JSON(http.StatusCreated, loan)
}

func (api *loanApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	loan, err := api.svc.GetLoan(ctx.Request().Context(), claims.scope(), ctx.Param(loanParam))
	if err != nil {
		return errors.Wrap(err, "getting loan")
	}
	// students only see their own loans
	if !claims.IsStaff() && loan.Borrower.ID != claims.Subject {
		return library.ErrLoanNotFound
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *loanApi) returnLoan(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data library.ReturnLoan
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReturnLoan")
	}

	loan, err := api.svc.Return(ctx.Request().Context(), claims.scope(), ctx.Param(loanParam), data.Notes)
	if err != nil {
		return errors.Wrap(err, "returning loan")
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *loanApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	deleted, err := api.svc.Delete(ctx.Request().Context(), claims.scope(), ctx.Param(loanParam))
	if err != nil {
		return errors.Wrap(err, "deleting loan")
	}
	return ctx.JSON(http.StatusOK, deleted)
}

func (api *loanApi) review(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data library.ReviewDecision
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewDecision")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	loan, err := api.svc.ReviewMigratedLoan(ctx.Request().Context(), claims.scope(), ctx.Param(loanParam), *data.Approve, data.Note)
	if err != nil {
		return errors.Wrap(err, "reviewing loan")
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *loanApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var query library.LoanQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to LoanQuery")
	}
	if query.NeedsReview, err = bindOptionalBool(ctx, "needsReview"); err != nil {
		return err
	}
	// students only see their own loans
	if !claims.IsStaff() {
		query.BorrowerType = string(claims.Kind)
		query.BorrowerID = claims.Subject
		query.StudentID = ""
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, library.LoanOrderingFields)

	loans, err := api.svc.QueryLoans(ctx.Request().Context(), ctx.Param(schoolParam), query, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying loans")
	}
	return ctx.JSON(http.StatusOK, loans)
}

func (api *loanApi) queryOverdue(ctx echo.Context) error {
	var query pageQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to pageQuery")
	}

	loans, err := api.svc.QueryOverdueLoans(ctx.Request().Context(), ctx.Param(schoolParam), api.svc.Pagination(query.Page, query.Limit))
	if err != nil {
		return errors.Wrap(err, "querying overdue loans")
	}
	return ctx.JSON(http.StatusOK, loans)
}

func (api *loanApi) fixAvailability(ctx echo.Context) error {
	report, err := api.svc.FixAvailability(ctx.Request().Context(), ctx.Param(schoolParam))
	if err != nil {
		return errors.Wrap(err, "fixing availability")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *loanApi) restoreAvailability(ctx echo.Context) error {
	report, err := api.svc.RestoreAvailability(ctx.Request().Context(), ctx.Param(schoolParam))
	if err != nil {
		return errors.Wrap(err, "restoring availability")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *loanApi) cleanup(ctx echo.Context) error {
	report, err := api.svc.CleanupOrphanedLoans(ctx.Request().Context(), ctx.Param(schoolParam))
	if err != nil {
		return errors.Wrap(err, "cleaning up orphaned loans")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *loanApi) migrateStaffLoans(ctx echo.Context) error {
	report, err := api.svc.MigrateOldStaffLoans(ctx.Request().Context(), ctx.Param(schoolParam))
	if err != nil {
		return errors.Wrap(err, "migrating legacy staff loans")
	}
	return ctx.JSON(http.StatusOK, report)
}

type pageQuery struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}
