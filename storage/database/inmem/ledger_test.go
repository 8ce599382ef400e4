package inmemdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	inmemdb "github.com/trezcool/maktaba/storage/database/inmem"
	"github.com/trezcool/maktaba/tests"
)

const school = "greenwood"

func TestLedgerRepository_IssueLoan(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewLedgerRepository(inmemdb.Open())

	book := testutil.CreateBook(t, repo, school, "Things Fall Apart", 1, 1)
	loan := testutil.NewLoan(school, book.ID, library.StudentBorrower("s1"), 24*time.Hour)

	_, after, err := repo.IssueLoan(ctx, loan)
	require.NoError(t, err)
	assert.Equal(t, 0, after.AvailableQuantity)
	assert.Equal(t, library.BookOutOfStock, after.Status)

	t.Run("no copy left", func(t *testing.T) {
		_, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, book.ID, library.StudentBorrower("s2"), time.Hour))
		assert.Equal(t, library.ErrUnavailable, err)
	})

	t.Run("duplicate active loan", func(t *testing.T) {
		b2 := testutil.CreateBook(t, repo, school, "Arrow of God", 3, 3)
		_, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, b2.ID, library.StudentBorrower("s1"), time.Hour))
		require.NoError(t, err)
		_, _, err = repo.IssueLoan(ctx, testutil.NewLoan(school, b2.ID, library.StudentBorrower("s1"), time.Hour))
		assert.Equal(t, library.ErrDuplicateLoan, err)

		got, err := repo.GetBook(ctx, school, b2.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AvailableQuantity, "a rejected issue must not take a copy")
	})

	t.Run("invalid borrower", func(t *testing.T) {
		_, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, book.ID, library.Borrower{Kind: "alien", ID: "x"}, time.Hour))
		assert.Equal(t, library.ErrInvalidBorrower, err)
	})

	t.Run("unknown book", func(t *testing.T) {
		_, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, "missing", library.StudentBorrower("s1"), time.Hour))
		assert.True(t, library.IsNotFound(err))
	})
}

func TestLedgerRepository_IssueLoan_concurrentLastCopy(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewLedgerRepository(inmemdb.Open())
	book := testutil.CreateBook(t, repo, school, "Weep Not, Child", 1, 1)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			borrower := library.StudentBorrower(string(rune('a' + i)))
			_, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, book.ID, borrower, time.Hour))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, unavailable int
	for err := range errs {
		switch err {
		case nil:
			ok++
		case library.ErrUnavailable:
			unavailable++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, unavailable)

	got, err := repo.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
}

func TestLedgerRepository_ReturnLoan(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewLedgerRepository(inmemdb.Open())
	book := testutil.CreateBook(t, repo, school, "Petals of Blood", 1, 1)
	loan, _, err := repo.IssueLoan(ctx, testutil.NewLoan(school, book.ID, library.TeacherBorrower("t1"), time.Hour))
	require.NoError(t, err)

	now := time.Now().UTC()
	ret := library.LoanReturn{School: school, LoanID: loan.ID, ReturnDate: now, Fine: decimal.RequireFromString("1.5"), Notes: "late"}
	returned, b, err := repo.ReturnLoan(ctx, ret)
	require.NoError(t, err)
	assert.Equal(t, library.LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.Fine.Equal(decimal.RequireFromString("1.50")))
	assert.Equal(t, 1, b.AvailableQuantity)
	assert.Equal(t, library.BookAvailable, b.Status)

	_, _, err = repo.ReturnLoan(ctx, ret)
	assert.Equal(t, library.ErrAlreadyReturned, err)

	ret.School = "elsewhere"
	_, _, err = repo.ReturnLoan(ctx, ret)
	assert.True(t, library.IsNotFound(err))
}

func TestLedgerRepository_DeleteLoan(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewLedgerRepository(db)
	book := testutil.CreateBook(t, repo, school, "The River Between", 3, 3)

	tests := []struct {
		name         string
		status       library.LoanStatus
		wantRestored bool
		wantAvail    int
	}{
		{name: "borrowed", status: library.LoanBorrowed, wantRestored: true, wantAvail: 3},
		{name: "overdue (legacy stored status)", status: library.LoanOverdue, wantRestored: true, wantAvail: 3},
		{name: "returned", status: library.LoanReturned, wantRestored: false, wantAvail: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := book
			b.AvailableQuantity = 2
			db.PutBook(b)

			loan := testutil.NewLoan(school, book.ID, library.StudentBorrower("s1"), -time.Hour)
			loan.Status = tt.status
			db.PutLoan(loan)

			_, restored, err := repo.DeleteLoan(ctx, school, loan.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRestored, restored)

			got, err := repo.GetBook(ctx, school, book.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAvail, got.AvailableQuantity)

			_, err = repo.GetLoan(ctx, school, loan.ID)
			assert.True(t, library.IsNotFound(err))
		})
	}

	t.Run("missing book", func(t *testing.T) {
		loan := testutil.NewLoan(school, "gone", library.StudentBorrower("s1"), time.Hour)
		db.PutLoan(loan)
		_, restored, err := repo.DeleteLoan(ctx, school, loan.ID)
		require.NoError(t, err)
		assert.False(t, restored)
	})
}

func TestLedgerRepository_RecomputeAvailability(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewLedgerRepository(db)

	book := testutil.CreateBook(t, repo, school, "Devil on the Cross", 4, 0) // drifted
	db.PutLoan(testutil.NewLoan(school, book.ID, library.StudentBorrower("s1"), time.Hour))
	returned := testutil.NewLoan(school, book.ID, library.StudentBorrower("s2"), time.Hour)
	returned.Status = library.LoanReturned
	db.PutLoan(returned)

	before, after, err := repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{})
	require.NoError(t, err)
	assert.Equal(t, 0, before.AvailableQuantity)
	assert.Equal(t, 3, after.AvailableQuantity)
	assert.Equal(t, library.BookAvailable, after.Status)

	// idempotent
	before, after, err = repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{})
	require.NoError(t, err)
	assert.Equal(t, before.Availability(), after.Availability())

	t.Run("quantity below active loans", func(t *testing.T) {
		_, _, err := repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{Quantity: testutil.IntPtr(0)})
		assert.Equal(t, library.ErrQuantityBelowActive, err)
	})

	t.Run("discontinue", func(t *testing.T) {
		_, after, err := repo.RecomputeAvailability(ctx, book.ID, library.BookAdjustment{Discontinue: true})
		require.NoError(t, err)
		assert.Equal(t, library.BookDiscontinued, after.Status)
		assert.Equal(t, 3, after.AvailableQuantity)
	})
}

func TestLedgerRepository_QueryLoans(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewLedgerRepository(db)
	book := testutil.CreateBook(t, repo, school, "Matigari", 10, 10)

	now := time.Now().UTC()
	var loans []library.Loan
	for i := 0; i < 5; i++ {
		l := testutil.NewLoan(school, book.ID, library.StudentBorrower(string(rune('a'+i))), time.Duration(i-2)*24*time.Hour)
		l.IssueDate = now.Add(time.Duration(i) * time.Minute)
		db.PutLoan(l)
		loans = append(loans, l)
	}
	other := testutil.NewLoan("elsewhere", book.ID, library.StudentBorrower("z"), time.Hour)
	db.PutLoan(other)

	byIssueDesc := []core.DBOrdering{{Field: "issue_date", Ascending: false}}

	got, err := repo.QueryLoans(ctx, library.LoanFilter{School: school}, core.Pagination{}, byIssueDesc)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, loans[4].ID, got[0].ID)

	got, err = repo.QueryLoans(ctx, library.LoanFilter{School: school}, core.Pagination{Page: 2, Limit: 2}, byIssueDesc)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, loans[2].ID, got[0].ID)
	assert.Equal(t, loans[1].ID, got[1].ID)

	got, err = repo.QueryLoans(ctx, library.LoanFilter{School: school}, core.Pagination{Page: 4, Limit: 2}, byIssueDesc)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.QueryLoans(ctx, library.LoanFilter{School: school, Statuses: library.ActiveStatuses, DueBefore: now}, core.Pagination{}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.QueryLoans(ctx, library.LoanFilter{School: school, BorrowerIDs: []string{"a", "e"}}, core.Pagination{}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
