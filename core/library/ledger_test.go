package library_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	"github.com/trezcool/maktaba/tests"
)

const school = "greenwood"

type fixtures struct {
	env       *testutil.Env
	student1  member.Member
	student2  member.Member
	teacher   member.Member
	librarian member.Member
}

func setup(t *testing.T) fixtures {
	env := testutil.NewInMemoryEnv(t)
	return fixtures{
		env:       env,
		student1:  testutil.CreateMember(t, env.MemberRepo, school, member.KindStudent, "Amina", testutil.InClass("5A")),
		student2:  testutil.CreateMember(t, env.MemberRepo, school, member.KindStudent, "Baraka", testutil.InClass("5B")),
		teacher:   testutil.CreateMember(t, env.MemberRepo, school, member.KindTeacher, "Mr. Otieno"),
		librarian: testutil.CreateMember(t, env.MemberRepo, school, member.KindLibrarian, "Mrs. Wanjiru", testutil.AsAdmin),
	}
}

func dueIn(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(time.RFC3339)
}

func TestService_Issue_validation(t *testing.T) {
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Kintu", 2, 2)
	otherBook := testutil.CreateBook(t, f.env.LedgerRepo, "riverside", "Kintu", 2, 2)

	tests := []struct {
		name  string
		data  library.IssueLoan
		check func(t *testing.T, err error)
	}{
		{
			name: "missing fields",
			data: library.IssueLoan{Notes: "x"},
			check: func(t *testing.T, err error) {
				var mfe *library.MissingFieldError
				require.True(t, errors.As(err, &mfe))
				assert.Equal(t, []string{"bookId", "borrowerId", "dueDate"}, mfe.Fields)
			},
		},
		{
			name: "missing due date only",
			data: library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID},
			check: func(t *testing.T, err error) {
				var mfe *library.MissingFieldError
				require.True(t, errors.As(err, &mfe))
				assert.Equal(t, []string{"dueDate"}, mfe.Fields)
			},
		},
		{
			name: "legacy studentId alias",
			data: library.IssueLoan{BookID: book.ID, StudentID: f.student1.ID},
			check: func(t *testing.T, err error) {
				var mfe *library.MissingFieldError
				require.True(t, errors.As(err, &mfe))
				assert.Equal(t, []string{"dueDate"}, mfe.Fields)
			},
		},
		{
			name: "malformed due date",
			data: library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "next week"},
			check: func(t *testing.T, err error) {
				_, ok := errors.Cause(err).(*core.ValidationError)
				assert.True(t, ok, "got %v", err)
			},
		},
		{
			name: "unknown book",
			data: library.IssueLoan{BookID: "nope", BorrowerID: f.student1.ID, DueDate: "2030-01-01"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, library.ErrBookNotFound, errors.Cause(err))
			},
		},
		{
			name: "book of another school",
			data: library.IssueLoan{BookID: otherBook.ID, BorrowerID: f.student1.ID, DueDate: "2030-01-01"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, library.ErrBookNotFound, errors.Cause(err))
			},
		},
		{
			name: "unknown borrower",
			data: library.IssueLoan{BookID: book.ID, BorrowerID: "ghost", DueDate: "2030-01-01"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, library.ErrBorrowerNotFound, errors.Cause(err))
			},
		},
		{
			name: "borrower of the wrong kind",
			data: library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, BorrowerType: "teacher", DueDate: "2030-01-01"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, library.ErrBorrowerNotFound, errors.Cause(err))
			},
		},
		{
			name: "unknown borrower type",
			data: library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, BorrowerType: "parent", DueDate: "2030-01-01"},
			check: func(t *testing.T, err error) {
				_, ok := errors.Cause(err).(*core.ValidationError)
				assert.True(t, ok, "got %v", err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), school, tt.data)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	// nothing was lent
	got, err := svc.GetBook(context.Background(), school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableQuantity)
}

func TestService_Issue_lastCopyScenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Half of a Yellow Sun", 1, 1)

	loan, err := svc.Issue(ctx, school, library.IssueLoan{
		BookID: book.ID, BorrowerID: f.student1.ID, DueDate: dueIn(7 * 24 * time.Hour), IssuedBy: f.librarian.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, library.LoanBorrowed, loan.Status)
	assert.False(t, loan.IsOverdue)
	require.NotNil(t, loan.Book)
	assert.Equal(t, book.Title, loan.Book.Title)
	require.NotNil(t, loan.BorrowerDetails)
	assert.Equal(t, f.student1.Name, loan.BorrowerDetails.Name)
	require.NotNil(t, loan.Issuer)
	assert.Equal(t, f.librarian.ID, loan.Issuer.ID)

	got, err := svc.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, library.Availability{AvailableQuantity: 0, Status: library.BookOutOfStock}, got.Availability())

	_, err = svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student2.ID, DueDate: dueIn(time.Hour)})
	assert.Equal(t, library.ErrUnavailable, errors.Cause(err))

	returned, err := svc.Return(ctx, school, loan.ID, "")
	require.NoError(t, err)
	assert.Equal(t, library.LoanReturned, returned.Status)
	assert.True(t, returned.Fine.IsZero())

	got, err = svc.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, library.Availability{AvailableQuantity: 1, Status: library.BookAvailable}, got.Availability())

	_, err = svc.Return(ctx, school, loan.ID, "")
	assert.Equal(t, library.ErrAlreadyReturned, errors.Cause(err))
}

func TestService_Issue_duplicate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Nervous Conditions", 5, 5)

	data := library.IssueLoan{BookID: book.ID, BorrowerID: f.teacher.ID, BorrowerType: "teacher", DueDate: "2099-12-31"}
	_, err := svc.Issue(ctx, school, data)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, school, data)
	assert.Equal(t, library.ErrDuplicateLoan, errors.Cause(err))

	// a different borrower is fine
	_, err = svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "2099-12-31"})
	require.NoError(t, err)

	got, err := svc.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableQuantity)
}

func TestService_Issue_staffResolution(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "So Long a Letter", 5, 5)

	tests := []struct {
		name     string
		data     library.IssueLoan
		wantKind member.Kind
	}{
		{name: "teacher probed first", data: library.IssueLoan{BorrowerID: f.teacher.ID, IsStaffMember: true}, wantKind: member.KindTeacher},
		{name: "librarian probed second", data: library.IssueLoan{BorrowerID: f.librarian.ID, IsStaffMember: true}, wantKind: member.KindLibrarian},
		{name: "explicit type", data: library.IssueLoan{BorrowerID: f.librarian.ID, BorrowerType: "LIBRARIAN"}, wantKind: member.KindLibrarian},
		{name: "defaults to student", data: library.IssueLoan{BorrowerID: f.student2.ID}, wantKind: member.KindStudent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.data.BookID = book.ID
			tt.data.DueDate = "2099-01-01"
			loan, err := svc.Issue(ctx, school, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, loan.Borrower.Kind)
			assert.Equal(t, tt.data.BorrowerID, loan.Borrower.ID)
		})
	}

	t.Run("student is not staff", func(t *testing.T) {
		_, err := svc.Issue(ctx, school, library.IssueLoan{
			BookID: book.ID, BorrowerID: f.student1.ID, IsStaffMember: true, DueDate: "2099-01-01",
		})
		assert.Equal(t, library.ErrBorrowerNotFound, errors.Cause(err))
	})
}

func TestService_Issue_concurrentLastCopy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Purple Hibiscus", 1, 1)

	borrowers := []member.Member{f.student1, f.student2}
	for i := 0; i < 8; i++ {
		borrowers = append(borrowers, testutil.CreateMember(t, f.env.MemberRepo, school, member.KindStudent, "Student"))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for _, b := range borrowers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: id, DueDate: "2099-01-01"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.Equal(t, library.ErrUnavailable, errors.Cause(err))
		}(b.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	got, err := svc.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
}

func TestService_Return_fine(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "The Famished Road", 2, 2)

	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return due.Add(-10 * 24 * time.Hour) })
	late, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "2024-05-01"})
	require.NoError(t, err)
	onTime, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student2.ID, DueDate: "2024-05-01"})
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return due.Add(72 * time.Hour) })
	got, err := svc.GetLoan(ctx, school, late.ID)
	require.NoError(t, err)
	assert.Equal(t, library.LoanOverdue, got.Status)
	assert.True(t, got.IsOverdue)

	returned, err := svc.Return(ctx, school, late.ID, "cover torn")
	require.NoError(t, err)
	assert.True(t, returned.Fine.Equal(decimal.RequireFromString("1.50")), "fine = %s", returned.Fine)
	assert.Equal(t, "cover torn", returned.Notes)
	assert.False(t, returned.IsOverdue)

	svc.SetClock(func() time.Time { return due })
	returned, err = svc.Return(ctx, school, onTime.ID, "")
	require.NoError(t, err)
	assert.True(t, returned.Fine.IsZero())
}

func TestService_Return_otherSchool(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Wizard of the Crow", 1, 1)
	loan, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "2099-01-01"})
	require.NoError(t, err)

	_, err = svc.Return(ctx, "riverside", loan.ID, "")
	assert.Equal(t, library.ErrLoanNotFound, errors.Cause(err))
	_, err = svc.Return(ctx, school, "nope", "")
	assert.Equal(t, library.ErrLoanNotFound, errors.Cause(err))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Americanah", 3, 3)

	active, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "2099-01-01"})
	require.NoError(t, err)
	got, _ := svc.GetBook(ctx, school, book.ID)
	require.Equal(t, 2, got.AvailableQuantity)

	deleted, err := svc.Delete(ctx, school, active.ID)
	require.NoError(t, err)
	assert.Equal(t, library.DeletedLoan{LoanID: active.ID, BookID: book.ID, WasActive: true, RestoredAvailability: true}, deleted)
	got, _ = svc.GetBook(ctx, school, book.ID)
	assert.Equal(t, 3, got.AvailableQuantity)

	t.Run("overdue loan restores too", func(t *testing.T) {
		svc.SetClock(func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) })
		defer svc.SetClock(func() time.Time { return time.Now().UTC() })
		loan, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student2.ID, DueDate: "2020-01-02"})
		require.NoError(t, err)

		svc.SetClock(func() time.Time { return time.Now().UTC() })
		deleted, err := svc.Delete(ctx, school, loan.ID)
		require.NoError(t, err)
		assert.True(t, deleted.RestoredAvailability)
		got, _ := svc.GetBook(ctx, school, book.ID)
		assert.Equal(t, 3, got.AvailableQuantity)
	})

	t.Run("returned loan does not restore", func(t *testing.T) {
		loan, err := svc.Issue(ctx, school, library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: "2099-01-01"})
		require.NoError(t, err)
		_, err = svc.Return(ctx, school, loan.ID, "")
		require.NoError(t, err)

		deleted, err := svc.Delete(ctx, school, loan.ID)
		require.NoError(t, err)
		assert.False(t, deleted.WasActive)
		assert.False(t, deleted.RestoredAvailability)
		got, _ := svc.GetBook(ctx, school, book.ID)
		assert.Equal(t, 3, got.AvailableQuantity)
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := svc.Delete(ctx, school, active.ID)
		assert.True(t, library.IsNotFound(err))
	})
}

func TestService_Issue_anySchool(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "The River Between", 2, 2)
	outsider := testutil.CreateMember(t, f.env.MemberRepo, "riverside", member.KindStudent, "Chebet", testutil.InClass("5A"))

	// an empty school looks the book up anywhere, but the borrower must belong to the book's school
	_, err := svc.Issue(ctx, "", library.IssueLoan{BookID: book.ID, BorrowerID: outsider.ID, DueDate: dueIn(48 * time.Hour)})
	assert.Equal(t, library.ErrBorrowerNotFound, errors.Cause(err))

	loans, err := svc.QueryLoans(ctx, school, library.LoanQuery{}, nil)
	require.NoError(t, err)
	assert.Empty(t, loans)

	got, err := svc.GetBook(ctx, school, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableQuantity)

	loan, err := svc.Issue(ctx, "", library.IssueLoan{BookID: book.ID, BorrowerID: f.student1.ID, DueDate: dueIn(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, school, loan.School)
	assert.Equal(t, library.StudentBorrower(f.student1.ID), loan.Borrower)

	loans, err = svc.QueryLoans(ctx, school, library.LoanQuery{}, nil)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}
