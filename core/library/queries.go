package library

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

// Pagination normalizes the page & limit requested by a client.
func (svc *Service) Pagination(page, limit int) core.Pagination {
	return core.NewPagination(page, limit, svc.pageSize, svc.maxPageSize)
}

// QueryLoans lists the loans of a school. Loans whose book or borrower cannot be
// resolved are left out of the page.
func (svc *Service) QueryLoans(ctx context.Context, school string, q LoanQuery, ordering []core.DBOrdering) ([]LoanDetail, error) {
	q.Clean()
	filter := LoanFilter{
		School:      school,
		BookID:      q.BookID,
		NeedsReview: q.NeedsReview,
	}

	now := svc.now()
	switch LoanStatus(q.Status) {
	case "":
	case LoanBorrowed:
		filter.Statuses = ActiveStatuses
		filter.DueFrom = now
	case LoanOverdue:
		filter.Statuses = ActiveStatuses
		filter.DueBefore = now
	case LoanReturned:
		filter.Statuses = []LoanStatus{LoanReturned}
	case loanActive:
		filter.Statuses = ActiveStatuses
	default:
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: "status must be one of: borrowed, overdue, returned, active",
		})
	}

	if q.BorrowerType != "" {
		kind := member.Kind(q.BorrowerType)
		if !kind.IsValid() {
			return nil, core.NewValidationError(nil, core.FieldError{
				Field: "borrowerType", Error: "borrowerType must be one of: student, teacher, librarian",
			})
		}
		filter.BorrowerKind = kind
	}
	if q.BorrowerID != "" {
		filter.BorrowerIDs = []string{q.BorrowerID}
	}

	if q.Class != "" {
		students, err := svc.members.Query(ctx, member.QueryFilter{School: school, Kind: member.KindStudent, Class: q.Class}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "querying class students")
		}
		ids := make([]string, 0, len(students))
		for _, s := range students {
			if q.BorrowerID == "" || q.BorrowerID == s.ID {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) == 0 {
			return []LoanDetail{}, nil
		}
		filter.BorrowerKind = member.KindStudent
		filter.BorrowerIDs = ids
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "issue_date", Ascending: false}}
	}
	loans, err := svc.repo.QueryLoans(ctx, filter, svc.Pagination(q.Page, q.Limit), ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying loans")
	}
	return svc.populate(ctx, school, loans)
}

// QueryOverdueLoans lists the active loans of a school past their due date, oldest due first.
func (svc *Service) QueryOverdueLoans(ctx context.Context, school string, page core.Pagination) ([]LoanDetail, error) {
	filter := LoanFilter{
		School:    school,
		Statuses:  ActiveStatuses,
		DueBefore: svc.now(),
	}
	ordering := []core.DBOrdering{{Field: "due_date", Ascending: true}}
	loans, err := svc.repo.QueryLoans(ctx, filter, page, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying overdue loans")
	}
	return svc.populate(ctx, school, loans)
}
