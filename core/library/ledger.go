package library

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

// Issue lends one copy of a book to a borrower.
// Checks run in order: missing fields, book, availability, borrower, duplicate active loan.
func (svc *Service) Issue(ctx context.Context, school string, il IssueLoan) (LoanDetail, error) {
	il.Clean()
	if err := il.missingFields(); err != nil {
		return LoanDetail{}, err
	}
	dueDate, err := core.ParseDate(il.DueDate)
	if err != nil {
		return LoanDetail{}, core.NewValidationError(nil, core.FieldError{Field: "dueDate", Error: "invalid date"})
	}

	book, err := svc.repo.GetBook(ctx, school, il.BookID)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "finding book")
	}
	if !book.IsLoanable() {
		return LoanDetail{}, ErrUnavailable
	}

	borrower, err := svc.resolveBorrower(ctx, book.School, il)
	if err != nil {
		return LoanDetail{}, err
	}

	exists, err := svc.repo.ActiveLoanExists(ctx, book.ID, borrower)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "checking active loans")
	}
	if exists {
		return LoanDetail{}, ErrDuplicateLoan
	}

	now := svc.now()
	loan := Loan{
		ID:        uuid.New().String(),
		School:    book.School,
		BookID:    book.ID,
		Borrower:  borrower,
		IssuedBy:  il.IssuedBy,
		IssueDate: now,
		DueDate:   dueDate,
		Status:    LoanBorrowed,
		Fine:      decimal.Zero,
		Notes:     il.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	loan, book, err = svc.repo.IssueLoan(ctx, loan)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "issuing loan")
	}

	svc.logger.Info("loan issued", map[string]interface{}{
		"school":    book.School,
		"loan":      loan.ID,
		"book":      book.ID,
		"borrower":  borrower.String(),
		"available": book.AvailableQuantity,
		"status":    string(book.Status),
	})
	return svc.populateOne(ctx, loan)
}

// resolveBorrower finds the borrower in the directory implied by the borrower type.
// Without a type, legacy staff requests probe teachers then librarians; others are students.
func (svc *Service) resolveBorrower(ctx context.Context, school string, il IssueLoan) (Borrower, error) {
	var kinds []member.Kind
	switch {
	case il.BorrowerType != "":
		kind := member.Kind(il.BorrowerType)
		if !kind.IsValid() {
			return Borrower{}, core.NewValidationError(ErrInvalidBorrower, core.FieldError{
				Field: "borrowerType", Error: "borrowerType must be one of: student, teacher, librarian",
			})
		}
		kinds = []member.Kind{kind}
	case il.IsStaffMember:
		kinds = []member.Kind{member.KindTeacher, member.KindLibrarian}
	default:
		kinds = []member.Kind{member.KindStudent}
	}

	for _, kind := range kinds {
		m, err := svc.members.Find(ctx, school, kind, il.BorrowerID)
		if err == nil {
			return NewBorrower(m.Kind, m.ID)
		}
		if errors.Cause(err) != member.ErrNotFound {
			return Borrower{}, errors.Wrap(err, "finding borrower")
		}
	}
	return Borrower{}, ErrBorrowerNotFound
}

// Return closes an active loan and charges the late fine, if any.
func (svc *Service) Return(ctx context.Context, school, loanID string, notes string) (LoanDetail, error) {
	loan, err := svc.repo.GetLoan(ctx, school, loanID)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "finding loan")
	}
	if !loan.IsActive() {
		return LoanDetail{}, ErrAlreadyReturned
	}

	now := svc.now()
	fine := svc.fines.Compute(loan.DueDate, now)
	loan, book, err := svc.repo.ReturnLoan(ctx, LoanReturn{
		School:     loan.School,
		LoanID:     loan.ID,
		ReturnDate: now,
		Fine:       fine,
		Notes:      appendNote(loan.Notes, core.CleanString(notes)),
	})
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "returning loan")
	}

	svc.logger.Info("loan returned", map[string]interface{}{
		"school":    loan.School,
		"loan":      loan.ID,
		"book":      loan.BookID,
		"fine":      fine.String(),
		"daysLate":  DaysLate(loan.DueDate, now),
		"available": book.AvailableQuantity,
		"status":    string(book.Status),
	})
	return svc.populateOne(ctx, loan)
}

// Delete removes a loan. Active loans (borrowed or overdue) give their copy back.
func (svc *Service) Delete(ctx context.Context, school, loanID string) (DeletedLoan, error) {
	loan, restored, err := svc.repo.DeleteLoan(ctx, school, loanID)
	if err != nil {
		return DeletedLoan{}, errors.Wrap(err, "deleting loan")
	}
	if loan.IsActive() && !restored {
		svc.logger.Warn("deleted an active loan without a resolvable book", map[string]interface{}{
			"school": loan.School,
			"loan":   loan.ID,
			"book":   loan.BookID,
		})
	}
	svc.logger.Info("loan deleted", map[string]interface{}{
		"school":   loan.School,
		"loan":     loan.ID,
		"book":     loan.BookID,
		"restored": restored,
	})
	return DeletedLoan{
		LoanID:               loan.ID,
		BookID:               loan.BookID,
		WasActive:            loan.IsActive(),
		RestoredAvailability: restored,
	}, nil
}

func (svc *Service) GetLoan(ctx context.Context, school, loanID string) (LoanDetail, error) {
	loan, err := svc.repo.GetLoan(ctx, school, loanID)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "finding loan")
	}
	return svc.populateOne(ctx, loan)
}

func appendNote(notes, note string) string {
	if note == "" {
		return notes
	}
	if notes == "" {
		return note
	}
	return strings.TrimSpace(notes) + "\n" + note
}

func (svc *Service) logDrift(msg string, before, after Book) {
	svc.logger.Warn(msg, map[string]interface{}{
		"school":          after.School,
		"book":            after.ID,
		"quantity":        after.Quantity,
		"availableBefore": before.AvailableQuantity,
		"availableAfter":  after.AvailableQuantity,
		"statusBefore":    string(before.Status),
		"statusAfter":     string(after.Status),
	})
}
