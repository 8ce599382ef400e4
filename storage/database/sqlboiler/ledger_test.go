//go:build integration

package boiledrepos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/tests"
)

const school = "greenwood"

func newLoan(bookID string, borrower library.Borrower, due time.Duration) library.Loan {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return library.Loan{
		ID:        uuid.New().String(),
		School:    school,
		BookID:    bookID,
		Borrower:  borrower,
		IssueDate: now,
		DueDate:   now.Add(due),
		Status:    library.LoanBorrowed,
		Fine:      decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PreparePostgres(t)
	repo := NewLedgerRepository(db)

	t.Run("books", func(t *testing.T) {
		testutil.ResetPostgres(t, db)

		book := testutil.CreateBook(t, repo, school, "Things Fall Apart", 2, 2)
		got, err := repo.GetBook(ctx, school, book.ID)
		require.NoError(t, err)
		assert.Equal(t, book.Title, got.Title)
		assert.Equal(t, book.Availability(), got.Availability())

		_, err = repo.GetBook(ctx, "riverside", book.ID)
		assert.Equal(t, library.ErrBookNotFound, err)

		dup := book
		dup.ID = uuid.New().String()
		_, err = repo.CreateBook(ctx, dup)
		assert.Equal(t, library.ErrDuplicateISBN, err)

		books, err := repo.QueryBooks(ctx, library.BookFilter{School: school, Search: "fall"}, []core.DBOrdering{{Field: "title", Ascending: true}})
		require.NoError(t, err)
		require.Len(t, books, 1)

		books, err = repo.GetBooksByID(ctx, school, []string{book.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, books, 1)
	})

	t.Run("issue, return, delete", func(t *testing.T) {
		testutil.ResetPostgres(t, db)
		book := testutil.CreateBook(t, repo, school, "Arrow of God", 1, 1)

		loan, after, err := repo.IssueLoan(ctx, newLoan(book.ID, library.StudentBorrower("s1"), 24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, library.Availability{AvailableQuantity: 0, Status: library.BookOutOfStock}, after.Availability())

		_, _, err = repo.IssueLoan(ctx, newLoan(book.ID, library.StudentBorrower("s2"), time.Hour))
		assert.Equal(t, library.ErrUnavailable, err)

		exists, err := repo.ActiveLoanExists(ctx, book.ID, library.StudentBorrower("s1"))
		require.NoError(t, err)
		assert.True(t, exists)

		returned, b, err := repo.ReturnLoan(ctx, library.LoanReturn{
			School: school, LoanID: loan.ID, ReturnDate: time.Now().UTC(), Fine: decimal.RequireFromString("1.50"), Notes: "late",
		})
		require.NoError(t, err)
		assert.Equal(t, library.LoanReturned, returned.Status)
		assert.Equal(t, library.Availability{AvailableQuantity: 1, Status: library.BookAvailable}, b.Availability())

		got, err := repo.GetLoan(ctx, school, loan.ID)
		require.NoError(t, err)
		assert.True(t, got.Fine.Equal(decimal.RequireFromString("1.5")))
		assert.NotNil(t, got.ReturnDate)

		_, _, err = repo.ReturnLoan(ctx, library.LoanReturn{School: school, LoanID: loan.ID, ReturnDate: time.Now()})
		assert.Equal(t, library.ErrAlreadyReturned, err)

		active, _, err := repo.IssueLoan(ctx, newLoan(book.ID, library.StudentBorrower("s2"), time.Hour))
		require.NoError(t, err)
		_, restored, err := repo.DeleteLoan(ctx, school, active.ID)
		require.NoError(t, err)
		assert.True(t, restored)

		b, err = repo.GetBook(ctx, school, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.AvailableQuantity)

		_, _, err = repo.DeleteLoan(ctx, school, active.ID)
		assert.Equal(t, library.ErrLoanNotFound, err)
	})

	t.Run("duplicate active loan rolls back the copy", func(t *testing.T) {
		testutil.ResetPostgres(t, db)
		book := testutil.CreateBook(t, repo, school, "Petals of Blood", 3, 3)

		_, _, err := repo.IssueLoan(ctx, newLoan(book.ID, library.TeacherBorrower("t1"), time.Hour))
		require.NoError(t, err)
		_, _, err = repo.IssueLoan(ctx, newLoan(book.ID, library.TeacherBorrower("t1"), time.Hour))
		assert.Equal(t, library.ErrDuplicateLoan, err)

		b, err := repo.GetBook(ctx, school, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, b.AvailableQuantity)
	})

	t.Run("concurrent issues of the last copy", func(t *testing.T) {
		testutil.ResetPostgres(t, db)
		book := testutil.CreateBook(t, repo, school, "Weep Not, Child", 1, 1)

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, err := repo.IssueLoan(ctx, newLoan(book.ID, library.StudentBorrower(uuid.New().String()), time.Hour))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		var ok int
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.Equal(t, library.ErrUnavailable, err)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("recompute & query", func(t *testing.T) {
		testutil.ResetPostgres(t, db)
		book := testutil.CreateBook(t, repo, school, "Devil on the Cross", 4, 0)

		l1 := newLoan(book.ID, library.StudentBorrower("s1"), -time.Hour)
		l2 := newLoan(book.ID, library.StudentBorrower("s2"), time.Hour)
		l2.IssueDate = l2.IssueDate.Add(time.Minute)
		legacy := newLoan("", library.Borrower{}, time.Hour)
		legacy.Legacy = library.LegacyRefs{IsStaffMember: true, StudentRef: "s9", LibrarianRef: "t9"}
		for _, l := range []library.Loan{l1, l2, legacy} {
			require.NoError(t, insertLoan(ctx, db, l))
		}

		before, after, err := repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{})
		require.NoError(t, err)
		assert.Equal(t, 0, before.AvailableQuantity)
		assert.Equal(t, 2, after.AvailableQuantity)

		_, _, err = repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{Quantity: new(int)})
		assert.Equal(t, library.ErrQuantityBelowActive, err)

		loans, err := repo.QueryLoans(ctx, library.LoanFilter{School: school, Statuses: library.ActiveStatuses, DueBefore: time.Now()},
			core.Pagination{}, nil)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, l1.ID, loans[0].ID)

		loans, err = repo.QueryLoans(ctx, library.LoanFilter{School: school, BookID: book.ID},
			core.Pagination{Page: 1, Limit: 1}, []core.DBOrdering{{Field: "issue_date", Ascending: false}})
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, l2.ID, loans[0].ID)

		loans, err = repo.QueryLoans(ctx, library.LoanFilter{School: school, LegacyStaff: true}, core.Pagination{}, nil)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.True(t, loans[0].Borrower.IsZero())
		assert.Empty(t, loans[0].BookID)

		flagged := loans[0]
		flagged.Review = &library.Review{Proposed: library.TeacherBorrower("t9"), Note: "inferred", FlaggedAt: time.Now().UTC()}
		updated, err := repo.UpdateLoanReview(ctx, flagged)
		require.NoError(t, err)
		require.NotNil(t, updated.Review)
		assert.Equal(t, library.TeacherBorrower("t9"), updated.Review.Proposed)

		needsReview := true
		loans, err = repo.QueryLoans(ctx, library.LoanFilter{School: school, NeedsReview: &needsReview}, core.Pagination{}, nil)
		require.NoError(t, err)
		assert.Len(t, loans, 1)
	})
}
