package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
)

type ledgerRepository struct {
	db *ledgerTables
}

var _ library.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) library.Repository {
	return &ledgerRepository{db: db.ledger}
}

// Books

func (repo *ledgerRepository) CreateBook(_ context.Context, book library.Book) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, b := range repo.db.books {
		if b.School == book.School && strings.EqualFold(b.ISBN, book.ISBN) {
			return library.Book{}, library.ErrDuplicateISBN
		}
	}
	repo.db.books[book.ID] = &book
	return book, nil
}

func (repo *ledgerRepository) GetBook(_ context.Context, school, id string) (library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	b, ok := repo.book(school, id)
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	return *b, nil
}

func (repo *ledgerRepository) book(school, id string) (*library.Book, bool) {
	b, ok := repo.db.books[id]
	if !ok || (school != "" && b.School != school) {
		return nil, false
	}
	return b, true
}

func (repo *ledgerRepository) QueryBooks(_ context.Context, filter library.BookFilter, ordering []core.DBOrdering) ([]library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	books := make([]library.Book, 0)
	for _, b := range repo.db.books {
		if filter.School != "" && b.School != filter.School {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) &&
			!strings.Contains(strings.ToLower(b.ISBN), search) {
			continue
		}
		books = append(books, *b)
	}

	sort.SliceStable(books, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareBooks(books[i], books[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return books[i].ID < books[j].ID
	})
	return books, nil
}

func (repo *ledgerRepository) GetBooksByID(_ context.Context, school string, ids []string) ([]library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	books := make([]library.Book, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if b, ok := repo.book(school, id); ok {
			books = append(books, *b)
		}
	}
	return books, nil
}

// Loans

func (repo *ledgerRepository) GetLoan(_ context.Context, school, id string) (library.Loan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	l, ok := repo.loan(school, id)
	if !ok {
		return library.Loan{}, library.ErrLoanNotFound
	}
	return *l, nil
}

func (repo *ledgerRepository) loan(school, id string) (*library.Loan, bool) {
	l, ok := repo.db.loans[id]
	if !ok || (school != "" && l.School != school) {
		return nil, false
	}
	return l, true
}

func (repo *ledgerRepository) QueryLoans(_ context.Context, filter library.LoanFilter, page core.Pagination, ordering []core.DBOrdering) ([]library.Loan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	loans := make([]library.Loan, 0)
	for _, l := range repo.db.loans {
		if matchLoan(*l, filter) {
			loans = append(loans, *l)
		}
	}

	sort.SliceStable(loans, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareLoans(loans[i], loans[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return loans[i].ID < loans[j].ID
	})

	if offset := page.Offset(); offset > 0 {
		if offset >= len(loans) {
			return []library.Loan{}, nil
		}
		loans = loans[offset:]
	}
	if page.Limit > 0 && len(loans) > page.Limit {
		loans = loans[:page.Limit]
	}
	return loans, nil
}

func matchLoan(l library.Loan, f library.LoanFilter) bool {
	if f.School != "" && l.School != f.School {
		return false
	}
	if len(f.Statuses) > 0 && !hasStatus(f.Statuses, l.Status) {
		return false
	}
	if !f.DueBefore.IsZero() && !l.DueDate.Before(f.DueBefore) {
		return false
	}
	if !f.DueFrom.IsZero() && l.DueDate.Before(f.DueFrom) {
		return false
	}
	if f.BookID != "" && l.BookID != f.BookID {
		return false
	}
	if f.BorrowerKind != "" && l.Borrower.Kind != f.BorrowerKind {
		return false
	}
	if len(f.BorrowerIDs) > 0 && !hasString(f.BorrowerIDs, l.Borrower.ID) {
		return false
	}
	if f.NeedsReview != nil && (l.Review != nil) != *f.NeedsReview {
		return false
	}
	if f.LegacyStaff && !(l.Legacy.IsStaffMember && l.Borrower.Kind != member.KindTeacher) {
		return false
	}
	return true
}

func (repo *ledgerRepository) ActiveLoanExists(_ context.Context, bookID string, borrower library.Borrower) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.activeLoanExists(bookID, borrower, ""), nil
}

func (repo *ledgerRepository) activeLoanExists(bookID string, borrower library.Borrower, exceptID string) bool {
	for _, l := range repo.db.loans {
		if l.ID != exceptID && l.IsActive() && l.BookID == bookID && l.Borrower == borrower {
			return true
		}
	}
	return false
}

func (repo *ledgerRepository) countActiveLoans(bookID string) int {
	var cnt int
	for _, l := range repo.db.loans {
		if l.IsActive() && l.BookID == bookID {
			cnt++
		}
	}
	return cnt
}

func (repo *ledgerRepository) IssueLoan(_ context.Context, loan library.Loan) (library.Loan, library.Book, error) {
	if err := loan.Borrower.Validate(); err != nil {
		return library.Loan{}, library.Book{}, err
	}

	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.books[loan.BookID]
	if !ok {
		return library.Loan{}, library.Book{}, library.ErrBookNotFound
	}
	if repo.activeLoanExists(loan.BookID, loan.Borrower, "") {
		return library.Loan{}, library.Book{}, library.ErrDuplicateLoan
	}
	book, err := library.TakeCopy(*b)
	if err != nil {
		return library.Loan{}, library.Book{}, err
	}
	book.UpdatedAt = loan.IssueDate

	*b = book
	repo.db.loans[loan.ID] = &loan
	return loan, book, nil
}

func (repo *ledgerRepository) ReturnLoan(_ context.Context, ret library.LoanReturn) (library.Loan, library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l, ok := repo.loan(ret.School, ret.LoanID)
	if !ok {
		return library.Loan{}, library.Book{}, library.ErrLoanNotFound
	}
	if !l.IsActive() {
		return library.Loan{}, library.Book{}, library.ErrAlreadyReturned
	}

	returnDate := ret.ReturnDate
	loan := *l
	loan.Status = library.LoanReturned
	loan.ReturnDate = &returnDate
	loan.Fine = ret.Fine
	loan.Notes = ret.Notes
	loan.UpdatedAt = returnDate

	var book library.Book
	if b, ok := repo.db.books[loan.BookID]; ok {
		book = library.PutBackCopy(*b)
		book.UpdatedAt = returnDate
		*b = book
	}
	*l = loan
	return loan, book, nil
}

func (repo *ledgerRepository) DeleteLoan(_ context.Context, school, id string) (library.Loan, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l, ok := repo.loan(school, id)
	if !ok {
		return library.Loan{}, false, library.ErrLoanNotFound
	}
	loan := *l

	var restored bool
	if loan.IsActive() {
		if b, ok := repo.db.books[loan.BookID]; ok {
			book := library.PutBackCopy(*b)
			book.UpdatedAt = time.Now().UTC()
			*b = book
			restored = true
		}
	}
	delete(repo.db.loans, id)
	return loan, restored, nil
}

func (repo *ledgerRepository) RecomputeAvailability(_ context.Context, bookID string, adj library.BookAdjustment) (library.Book, library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.books[bookID]
	if !ok {
		return library.Book{}, library.Book{}, library.ErrBookNotFound
	}
	before := *b
	after, err := library.Recompute(before, repo.countActiveLoans(bookID), adj)
	if err != nil {
		return before, before, err
	}
	if after != before {
		after.UpdatedAt = time.Now().UTC()
	}
	*b = after
	return before, after, nil
}

func (repo *ledgerRepository) UpdateLoanReview(_ context.Context, loan library.Loan) (library.Loan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l, ok := repo.loan(loan.School, loan.ID)
	if !ok {
		return library.Loan{}, library.ErrLoanNotFound
	}
	if l.IsActive() && loan.Borrower != l.Borrower && repo.activeLoanExists(l.BookID, loan.Borrower, l.ID) {
		return library.Loan{}, library.ErrDuplicateLoan
	}

	updated := *l
	updated.Borrower = loan.Borrower
	updated.Review = loan.Review
	updated.Legacy = loan.Legacy
	updated.Notes = loan.Notes
	if !loan.UpdatedAt.IsZero() {
		updated.UpdatedAt = loan.UpdatedAt
	}
	*l = updated
	return updated, nil
}

// helpers

func hasStatus(statuses []library.LoanStatus, s library.LoanStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func hasString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareLoans(a, b library.Loan, col string) int {
	switch col {
	case "issue_date":
		return compareTimes(a.IssueDate, b.IssueDate)
	case "due_date":
		return compareTimes(a.DueDate, b.DueDate)
	case "return_date":
		var ra, rb time.Time
		if a.ReturnDate != nil {
			ra = *a.ReturnDate
		}
		if b.ReturnDate != nil {
			rb = *b.ReturnDate
		}
		return compareTimes(ra, rb)
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func compareBooks(a, b library.Book, col string) int {
	switch col {
	case "title":
		return compareStrings(a.Title, b.Title)
	case "author":
		return compareStrings(a.Author, b.Author)
	case "isbn":
		return compareStrings(a.ISBN, b.ISBN)
	case "category":
		return compareStrings(a.Category, b.Category)
	case "quantity":
		return compareInts(a.Quantity, b.Quantity)
	case "available_quantity":
		return compareInts(a.AvailableQuantity, b.AvailableQuantity)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}
