package library

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

type (
	Repository interface {
		CreateBook(ctx context.Context, book Book) (Book, error)
		// GetBook finds a book by ID. An empty school matches any school.
		GetBook(ctx context.Context, school, id string) (Book, error)
		QueryBooks(ctx context.Context, filter BookFilter, ordering []core.DBOrdering) ([]Book, error)
		GetBooksByID(ctx context.Context, school string, ids []string) ([]Book, error)

		// GetLoan finds a loan by ID. An empty school matches any school.
		GetLoan(ctx context.Context, school, id string) (Loan, error)
		QueryLoans(ctx context.Context, filter LoanFilter, page core.Pagination, ordering []core.DBOrdering) ([]Loan, error)
		ActiveLoanExists(ctx context.Context, bookID string, borrower Borrower) (bool, error)

		// IssueLoan takes one copy of the loan's book (failing with ErrUnavailable when none is left)
		// and inserts the loan, as one atomic unit. ErrDuplicateLoan is returned when the borrower
		// already holds an active loan for the book.
		IssueLoan(ctx context.Context, loan Loan) (Loan, Book, error)
		// ReturnLoan marks an active loan as returned and puts its copy back, as one atomic unit.
		ReturnLoan(ctx context.Context, ret LoanReturn) (Loan, Book, error)
		// DeleteLoan removes a loan. When the loan was active and its book exists,
		// the copy is put back in the same atomic unit (restored = true).
		DeleteLoan(ctx context.Context, school, id string) (loan Loan, restored bool, err error)
		// RecomputeAvailability locks a book, counts its active loans and rewrites its availability.
		RecomputeAvailability(ctx context.Context, bookID string, adj BookAdjustment) (before, after Book, err error)
		// UpdateLoanReview persists the borrower, review and legacy fields of a loan.
		UpdateLoanReview(ctx context.Context, loan Loan) (Loan, error)
	}

	// Directory resolves borrowers and issuers.
	Directory interface {
		Find(ctx context.Context, school string, kind member.Kind, id string) (member.Member, error)
		GetMany(ctx context.Context, school string, ids []string) (map[string]member.Member, error)
		Query(ctx context.Context, filter member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error)
	}

	LoanReturn struct {
		School     string
		LoanID     string
		ReturnDate time.Time
		Fine       decimal.Decimal
		Notes      string
	}

	Service struct {
		repo        Repository
		members     Directory
		logger      core.Logger
		fines       FinePolicy
		pageSize    int
		maxPageSize int
		now         func() time.Time
	}
)

func NewService(repo Repository, members Directory, logger core.Logger, conf *core.Config) *Service {
	fines, err := NewFinePolicy(conf.Library.FinePerDay)
	if err != nil {
		logger.Warn(fmt.Sprintf("invalid fine per day %q, using %s", conf.Library.FinePerDay, DefaultFinePerDay), err)
		fines = FinePolicy{PerDay: DefaultFinePerDay}
	}
	return &Service{
		repo:        repo,
		members:     members,
		logger:      logger,
		fines:       fines,
		pageSize:    conf.Library.DefaultPageSize,
		maxPageSize: conf.Library.MaxPageSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock. Used by tests.
func (svc *Service) SetClock(now func() time.Time) {
	svc.now = now
}

func (svc *Service) Fines() FinePolicy { return svc.fines }

// populate attaches display fields to loans and drops the ones whose book or borrower
// cannot be resolved. The result is never nil.
func (svc *Service) populate(ctx context.Context, school string, loans []Loan) ([]LoanDetail, error) {
	details := make([]LoanDetail, 0, len(loans))
	if len(loans) == 0 {
		return details, nil
	}

	bookIDs := make([]string, 0, len(loans))
	memberIDs := make([]string, 0, 2*len(loans))
	for _, l := range loans {
		if l.BookID != "" {
			bookIDs = append(bookIDs, l.BookID)
		}
		if l.Borrower.ID != "" {
			memberIDs = append(memberIDs, l.Borrower.ID)
		}
		if l.IssuedBy != "" {
			memberIDs = append(memberIDs, l.IssuedBy)
		}
	}

	books, err := svc.booksByID(ctx, school, bookIDs)
	if err != nil {
		return nil, err
	}
	members, err := svc.members.GetMany(ctx, school, memberIDs)
	if err != nil {
		return nil, err
	}

	now := svc.now()
	for _, l := range loans {
		book, ok := books[l.BookID]
		if !ok {
			continue
		}
		borrower, ok := members[l.Borrower.ID]
		if !ok || borrower.Kind != l.Borrower.Kind {
			continue
		}
		bookSum := book.Summary()
		borrowerSum := borrower.Summary()
		d := LoanDetail{
			Loan:            l,
			Status:          l.EffectiveStatus(now),
			IsOverdue:       l.IsOverdue(now),
			Book:            &bookSum,
			BorrowerDetails: &borrowerSum,
		}
		if issuer, ok := members[l.IssuedBy]; ok {
			issuerSum := issuer.Summary()
			d.Issuer = &issuerSum
		}
		details = append(details, d)
	}
	return details, nil
}

func (svc *Service) populateOne(ctx context.Context, loan Loan) (LoanDetail, error) {
	details, err := svc.populate(ctx, loan.School, []Loan{loan})
	if err != nil {
		return LoanDetail{}, err
	}
	if len(details) == 0 {
		// dangling references: still return what we know
		now := svc.now()
		return LoanDetail{Loan: loan, Status: loan.EffectiveStatus(now), IsOverdue: loan.IsOverdue(now)}, nil
	}
	return details[0], nil
}

func (svc *Service) booksByID(ctx context.Context, school string, ids []string) (map[string]Book, error) {
	res := make(map[string]Book, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	books, err := svc.repo.GetBooksByID(ctx, school, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		res[b.ID] = b
	}
	return res, nil
}
