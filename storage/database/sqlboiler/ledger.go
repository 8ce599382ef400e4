package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

const (
	isbnConstraint       = "books_school_isbn_key"
	activeLoanConstraint = "loans_active_book_borrower_key"
	activeStatusesSQL    = "('borrowed', 'overdue')"
)

type ledgerRepository struct {
	db core.DB
}

var _ library.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db core.DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

// Books

func (repo ledgerRepository) CreateBook(ctx context.Context, book library.Book) (library.Book, error) {
	q := queries.Raw(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING %s`,
		bookTable, strings.Join(bookColumns, ", "), strings.Join(bookColumns, ", ")),
		book.ID, book.School, book.Title, book.Author, book.ISBN, book.Category,
		book.Quantity, book.AvailableQuantity, string(book.Status), book.CreatedAt.UTC(), book.UpdatedAt.UTC(),
	)
	var row bookRow
	if err := q.Bind(ctx, repo.db, &row); err != nil {
		if constraintViolated(err, isbnConstraint) {
			return library.Book{}, library.ErrDuplicateISBN
		}
		return library.Book{}, errors.Wrap(err, "inserting book")
	}
	return unboilBook(row), nil
}

func bookMods(school, id string) []qm.QueryMod {
	mods := []qm.QueryMod{
		qm.Select(bookColumns...),
		qm.From(bookTable),
		qm.Where("id = ?", id),
	}
	if school != "" {
		mods = append(mods, qm.Where("school = ?", school))
	}
	return mods
}

func (repo ledgerRepository) GetBook(ctx context.Context, school, id string) (library.Book, error) {
	var row bookRow
	if err := newQuery(bookMods(school, id)...).Bind(ctx, repo.db, &row); err != nil {
		return library.Book{}, trapNoRowsErr(err, library.ErrBookNotFound, "finding book")
	}
	return unboilBook(row), nil
}

func (repo ledgerRepository) QueryBooks(ctx context.Context, filter library.BookFilter, ordering []core.DBOrdering) ([]library.Book, error) {
	mods := []qm.QueryMod{qm.Select(bookColumns...), qm.From(bookTable)}
	if filter.School != "" {
		mods = append(mods, qm.Where("school = ?", filter.School))
	}
	if filter.Status != "" {
		mods = append(mods, qm.Where("status = ?", string(filter.Status)))
	}
	// books with Title, Author or ISBN matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		mods = append(mods, qm.Expr(qm.Where("title ILIKE ? OR author ILIKE ? OR isbn ILIKE ?", val, val, val)))
	}
	if len(ordering) > 0 {
		mods = append(mods, orderBy(ordering))
	}

	var rows []bookRow
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	return unboilBooks(rows), nil
}

func (repo ledgerRepository) GetBooksByID(ctx context.Context, school string, ids []string) ([]library.Book, error) {
	if len(ids) == 0 {
		return []library.Book{}, nil
	}
	mods := []qm.QueryMod{
		qm.Select(bookColumns...),
		qm.From(bookTable),
		qm.WhereIn("id IN ?", interfaces(ids)...),
	}
	if school != "" {
		mods = append(mods, qm.Where("school = ?", school))
	}

	var rows []bookRow
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "finding books")
	}
	return unboilBooks(rows), nil
}

// lockBook reads a book with a row lock held until the end of the transaction.
func lockBook(ctx context.Context, tx core.DBExecutor, id string) (library.Book, error) {
	mods := append(bookMods("", id), qm.For("UPDATE"))
	var row bookRow
	if err := newQuery(mods...).Bind(ctx, tx, &row); err != nil {
		return library.Book{}, trapNoRowsErr(err, library.ErrBookNotFound, "locking book")
	}
	return unboilBook(row), nil
}

func saveBook(ctx context.Context, tx core.DBExecutor, book library.Book) error {
	_, err := queries.Raw(
		`UPDATE books SET quantity = $2, available_quantity = $3, status = $4, updated_at = $5 WHERE id = $1`,
		book.ID, book.Quantity, book.AvailableQuantity, string(book.Status), book.UpdatedAt.UTC(),
	).ExecContext(ctx, tx)
	return errors.Wrap(err, "updating book availability")
}

// takeCopy decrements the available copies of a book, only if one is left.
func takeCopy(ctx context.Context, tx core.DBExecutor, id string, at time.Time) (library.Book, error) {
	q := queries.Raw(fmt.Sprintf(
		`UPDATE books SET available_quantity = available_quantity - 1,
			status = CASE WHEN available_quantity <= 1 THEN '%s' ELSE '%s' END, updated_at = $2
		WHERE id = $1 AND available_quantity > 0 AND status <> '%s' RETURNING %s`,
		library.BookOutOfStock, library.BookAvailable, library.BookDiscontinued, strings.Join(bookColumns, ", ")),
		id, at.UTC(),
	)
	var row bookRow
	err := q.Bind(ctx, tx, &row)
	if err == nil {
		return unboilBook(row), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return library.Book{}, errors.Wrap(err, "taking a copy")
	}

	// nothing updated: the book is missing or has no copy left
	var exists bool
	if err = queries.Raw(`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id).QueryRowContext(ctx, tx).Scan(&exists); err != nil {
		return library.Book{}, errors.Wrap(err, "checking book")
	}
	if !exists {
		return library.Book{}, library.ErrBookNotFound
	}
	return library.Book{}, library.ErrUnavailable
}

// Loans

func loanMods(school, id string) []qm.QueryMod {
	mods := []qm.QueryMod{
		qm.Select(loanColumns...),
		qm.From(loanTable),
		qm.Where("id = ?", id),
	}
	if school != "" {
		mods = append(mods, qm.Where("school = ?", school))
	}
	return mods
}

func (repo ledgerRepository) GetLoan(ctx context.Context, school, id string) (library.Loan, error) {
	var row loanRow
	if err := newQuery(loanMods(school, id)...).Bind(ctx, repo.db, &row); err != nil {
		return library.Loan{}, trapNoRowsErr(err, library.ErrLoanNotFound, "finding loan")
	}
	return unboilLoan(row), nil
}

func lockLoan(ctx context.Context, tx core.DBExecutor, school, id string) (library.Loan, error) {
	mods := append(loanMods(school, id), qm.For("UPDATE"))
	var row loanRow
	if err := newQuery(mods...).Bind(ctx, tx, &row); err != nil {
		return library.Loan{}, trapNoRowsErr(err, library.ErrLoanNotFound, "locking loan")
	}
	return unboilLoan(row), nil
}

func (repo ledgerRepository) QueryLoans(ctx context.Context, filter library.LoanFilter, page core.Pagination, ordering []core.DBOrdering) ([]library.Loan, error) {
	mods := []qm.QueryMod{qm.Select(loanColumns...), qm.From(loanTable)}
	if filter.School != "" {
		mods = append(mods, qm.Where("school = ?", filter.School))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		mods = append(mods, qm.WhereIn("status IN ?", interfaces(statuses)...))
	}
	if !filter.DueBefore.IsZero() {
		mods = append(mods, qm.Where("due_date < ?", filter.DueBefore.UTC()))
	}
	if !filter.DueFrom.IsZero() {
		mods = append(mods, qm.Where("due_date >= ?", filter.DueFrom.UTC()))
	}
	if filter.BookID != "" {
		mods = append(mods, qm.Where("book_id = ?", filter.BookID))
	}
	if filter.BorrowerKind != "" {
		mods = append(mods, qm.Where("borrower_kind = ?", string(filter.BorrowerKind)))
	}
	if len(filter.BorrowerIDs) > 0 {
		mods = append(mods, qm.WhereIn("borrower_id IN ?", interfaces(filter.BorrowerIDs)...))
	}
	if filter.NeedsReview != nil {
		if *filter.NeedsReview {
			mods = append(mods, qm.Where("review_proposed_id IS NOT NULL"))
		} else {
			mods = append(mods, qm.Where("review_proposed_id IS NULL"))
		}
	}
	if filter.LegacyStaff {
		mods = append(mods, qm.Where("is_staff_member AND (borrower_kind IS NULL OR borrower_kind <> 'teacher')"))
	}
	if len(ordering) > 0 {
		mods = append(mods, orderBy(append(ordering, core.DBOrdering{Field: "id", Ascending: true})))
	}
	if page.Limit > 0 {
		mods = append(mods, qm.Limit(page.Limit), qm.Offset(page.Offset()))
	}

	var rows []loanRow
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying loans")
	}
	return unboilLoans(rows), nil
}

func (repo ledgerRepository) ActiveLoanExists(ctx context.Context, bookID string, borrower library.Borrower) (bool, error) {
	var exists bool
	err := queries.Raw(
		`SELECT EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND borrower_kind = $2 AND borrower_id = $3 AND status IN `+activeStatusesSQL+`)`,
		bookID, string(borrower.Kind), borrower.ID,
	).QueryRowContext(ctx, repo.db).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking active loans")
	}
	return exists, nil
}

func insertLoan(ctx context.Context, exec core.DBExecutor, loan library.Loan) error {
	r := boilLoan(loan)
	_, err := queries.Raw(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		loanTable, strings.Join(loanColumns, ", ")),
		r.ID, r.School, r.BookID, r.BorrowerKind, r.BorrowerID, r.IssuedBy,
		r.IssueDate, r.DueDate, r.ReturnDate, r.Status, r.Fine, r.Notes,
		r.IsStaffMember, r.LegacyStudentRef, r.LegacyLibrarianRef,
		r.ReviewProposedKind, r.ReviewProposedID, r.ReviewNote, r.ReviewFlaggedAt,
		r.CreatedAt, r.UpdatedAt,
	).ExecContext(ctx, exec)
	return err
}

func (repo ledgerRepository) IssueLoan(ctx context.Context, loan library.Loan) (library.Loan, library.Book, error) {
	if err := loan.Borrower.Validate(); err != nil {
		return library.Loan{}, library.Book{}, err
	}

	var book library.Book
	err := core.InTx(ctx, repo.db, func(tx core.DBTransactor) error {
		var err error
		if book, err = takeCopy(ctx, tx, loan.BookID, loan.IssueDate); err != nil {
			return err
		}
		if err = insertLoan(ctx, tx, loan); err != nil {
			if constraintViolated(err, activeLoanConstraint) {
				return library.ErrDuplicateLoan
			}
			return errors.Wrap(err, "inserting loan")
		}
		return nil
	})
	if err != nil {
		return library.Loan{}, library.Book{}, err
	}
	return loan, book, nil
}

func (repo ledgerRepository) ReturnLoan(ctx context.Context, ret library.LoanReturn) (library.Loan, library.Book, error) {
	var loan library.Loan
	var book library.Book
	err := core.InTx(ctx, repo.db, func(tx core.DBTransactor) error {
		l, err := lockLoan(ctx, tx, ret.School, ret.LoanID)
		if err != nil {
			return err
		}
		if !l.IsActive() {
			return library.ErrAlreadyReturned
		}

		returnDate := ret.ReturnDate.UTC()
		loan = l
		loan.Status = library.LoanReturned
		loan.ReturnDate = &returnDate
		loan.Fine = ret.Fine
		loan.Notes = ret.Notes
		loan.UpdatedAt = returnDate

		_, err = queries.Raw(
			`UPDATE loans SET status = $2, return_date = $3, fine = $4, notes = $5, updated_at = $6 WHERE id = $1`,
			loan.ID, string(loan.Status), returnDate, loan.Fine, loan.Notes, loan.UpdatedAt,
		).ExecContext(ctx, tx)
		if err != nil {
			return errors.Wrap(err, "updating loan")
		}

		if loan.BookID == "" {
			return nil
		}
		b, err := lockBook(ctx, tx, loan.BookID)
		if err != nil {
			if library.IsNotFound(err) {
				return nil
			}
			return err
		}
		book = library.PutBackCopy(b)
		book.UpdatedAt = returnDate
		return saveBook(ctx, tx, book)
	})
	if err != nil {
		return library.Loan{}, library.Book{}, err
	}
	return loan, book, nil
}

func (repo ledgerRepository) DeleteLoan(ctx context.Context, school, id string) (library.Loan, bool, error) {
	var loan library.Loan
	var restored bool
	err := core.InTx(ctx, repo.db, func(tx core.DBTransactor) error {
		var err error
		if loan, err = lockLoan(ctx, tx, school, id); err != nil {
			return err
		}
		if _, err = queries.Raw(`DELETE FROM loans WHERE id = $1`, loan.ID).ExecContext(ctx, tx); err != nil {
			return errors.Wrap(err, "deleting loan")
		}

		if !loan.IsActive() || loan.BookID == "" {
			return nil
		}
		b, err := lockBook(ctx, tx, loan.BookID)
		if err != nil {
			if library.IsNotFound(err) {
				return nil
			}
			return err
		}
		book := library.PutBackCopy(b)
		book.UpdatedAt = time.Now().UTC()
		if err = saveBook(ctx, tx, book); err != nil {
			return err
		}
		restored = true
		return nil
	})
	if err != nil {
		return library.Loan{}, false, err
	}
	return loan, restored, nil
}

func (repo ledgerRepository) RecomputeAvailability(ctx context.Context, bookID string, adj library.BookAdjustment) (library.Book, library.Book, error) {
	var before, after library.Book
	err := core.InTx(ctx, repo.db, func(tx core.DBTransactor) error {
		var err error
		if before, err = lockBook(ctx, tx, bookID); err != nil {
			return err
		}

		var active int
		err = queries.Raw(
			`SELECT COUNT(*) FROM loans WHERE book_id = $1 AND status IN `+activeStatusesSQL,
			bookID,
		).QueryRowContext(ctx, tx).Scan(&active)
		if err != nil {
			return errors.Wrap(err, "counting active loans")
		}

		if after, err = library.Recompute(before, active, adj); err != nil {
			return err
		}
		if after == before {
			return nil
		}
		after.UpdatedAt = time.Now().UTC()
		return saveBook(ctx, tx, after)
	})
	if err != nil {
		return library.Book{}, library.Book{}, err
	}
	return before, after, nil
}

func (repo ledgerRepository) UpdateLoanReview(ctx context.Context, loan library.Loan) (library.Loan, error) {
	r := boilLoan(loan)
	if loan.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	q := queries.Raw(fmt.Sprintf(
		`UPDATE loans SET borrower_kind = $3, borrower_id = $4, notes = $5, is_staff_member = $6,
			review_proposed_kind = $7, review_proposed_id = $8, review_note = $9, review_flagged_at = $10, updated_at = $11
		WHERE id = $1 AND school = $2 RETURNING %s`, strings.Join(loanColumns, ", ")),
		r.ID, r.School, r.BorrowerKind, r.BorrowerID, r.Notes, r.IsStaffMember,
		r.ReviewProposedKind, r.ReviewProposedID, r.ReviewNote, r.ReviewFlaggedAt, r.UpdatedAt,
	)
	var row loanRow
	if err := q.Bind(ctx, repo.db, &row); err != nil {
		if constraintViolated(err, activeLoanConstraint) {
			return library.Loan{}, library.ErrDuplicateLoan
		}
		return library.Loan{}, trapNoRowsErr(err, library.ErrLoanNotFound, "updating loan review")
	}
	return unboilLoan(row), nil
}
