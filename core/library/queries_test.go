package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/tests"
)

func loanIDs(details []library.LoanDetail) []string {
	ids := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestService_QueryLoans(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	db := f.env.DB
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Homegoing", 10, 6)
	other := testutil.CreateBook(t, f.env.LedgerRepo, school, "Ghana Must Go", 10, 10)

	now := time.Now().UTC()
	current := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student1.ID), 48*time.Hour)
	current.IssueDate = now.Add(-4 * time.Hour)
	late := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student2.ID), -48*time.Hour)
	late.IssueDate = now.Add(-3 * time.Hour)
	legacyOverdue := testutil.NewLoan(school, book.ID, library.TeacherBorrower(f.teacher.ID), -24*time.Hour)
	legacyOverdue.Status = library.LoanOverdue
	legacyOverdue.IssueDate = now.Add(-2 * time.Hour)
	returned := testutil.NewLoan(school, other.ID, library.StudentBorrower(f.student1.ID), -24*time.Hour)
	returned.Status = library.LoanReturned
	returned.ReturnDate = &now
	returned.IssueDate = now.Add(-time.Hour)
	orphan := testutil.NewLoan(school, "vanished", library.StudentBorrower(f.student1.ID), time.Hour)
	wrongKind := testutil.NewLoan(school, book.ID, library.TeacherBorrower(f.student2.ID), time.Hour)
	orphan.IssueDate = now.Add(-10 * time.Hour)
	wrongKind.IssueDate = now.Add(-11 * time.Hour)
	elsewhere := testutil.NewLoan("riverside", book.ID, library.StudentBorrower(f.student1.ID), time.Hour)
	for _, l := range []library.Loan{current, late, legacyOverdue, returned, orphan, wrongKind, elsewhere} {
		db.PutLoan(l)
	}

	tests := []struct {
		name     string
		query    library.LoanQuery
		ordering []core.DBOrdering
		want     []string
		wantErr  bool
	}{
		{name: "all (newest first, invalid ones dropped)", want: []string{returned.ID, legacyOverdue.ID, late.ID, current.ID}},
		{name: "borrowed", query: library.LoanQuery{Status: "borrowed"}, want: []string{current.ID}},
		{name: "overdue", query: library.LoanQuery{Status: "OVERDUE"}, want: []string{legacyOverdue.ID, late.ID}},
		{name: "returned", query: library.LoanQuery{Status: "returned"}, want: []string{returned.ID}},
		{name: "active", query: library.LoanQuery{Status: "active"}, want: []string{legacyOverdue.ID, late.ID, current.ID}},
		{name: "unknown status", query: library.LoanQuery{Status: "lost"}, wantErr: true},
		{name: "borrower type", query: library.LoanQuery{BorrowerType: "teacher"}, want: []string{legacyOverdue.ID}},
		{name: "unknown borrower type", query: library.LoanQuery{BorrowerType: "parent"}, wantErr: true},
		{name: "studentId alias", query: library.LoanQuery{StudentID: f.student1.ID}, want: []string{returned.ID, current.ID}},
		{name: "book", query: library.LoanQuery{BookID: other.ID}, want: []string{returned.ID}},
		{name: "class", query: library.LoanQuery{Class: "5B"}, want: []string{late.ID}},
		{name: "unknown class", query: library.LoanQuery{Class: "9Z"}, want: []string{}},
		{
			name: "ordering", query: library.LoanQuery{Status: "active"},
			ordering: []core.DBOrdering{{Field: "due_date", Ascending: true}},
			want:     []string{late.ID, legacyOverdue.ID, current.ID},
		},
		{name: "pagination", query: library.LoanQuery{Page: 2, Limit: 2}, want: []string{late.ID, current.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.QueryLoans(ctx, school, tt.query, tt.ordering)
			if tt.wantErr {
				_, ok := errors.Cause(err).(*core.ValidationError)
				assert.True(t, ok, "got %v", err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, loanIDs(got))
		})
	}

	t.Run("effective status", func(t *testing.T) {
		got, err := svc.GetLoan(ctx, school, late.ID)
		require.NoError(t, err)
		assert.Equal(t, library.LoanOverdue, got.Status)
		assert.Equal(t, library.LoanBorrowed, got.Loan.Status)
		assert.True(t, got.IsOverdue)
	})
}

func TestService_QueryOverdueLoans(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Aké", 10, 7)

	veryLate := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student1.ID), -10*24*time.Hour)
	late := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student2.ID), -24*time.Hour)
	notYet := testutil.NewLoan(school, book.ID, library.TeacherBorrower(f.teacher.ID), 24*time.Hour)
	for _, l := range []library.Loan{late, notYet, veryLate} {
		f.env.DB.PutLoan(l)
	}

	got, err := svc.QueryOverdueLoans(ctx, school, svc.Pagination(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{veryLate.ID, late.ID}, loanIDs(got))
	for _, d := range got {
		assert.True(t, d.IsOverdue)
		assert.Equal(t, library.LoanOverdue, d.Status)
	}

	got, err = svc.QueryOverdueLoans(ctx, "riverside", svc.Pagination(1, 10))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_Pagination(t *testing.T) {
	f := setup(t)
	svc := f.env.LibrarySvc

	assert.Equal(t, core.Pagination{Page: 1, Limit: 50}, svc.Pagination(0, 0))
	assert.Equal(t, core.Pagination{Page: 3, Limit: 10}, svc.Pagination(3, 10))
	assert.Equal(t, core.Pagination{Page: 1, Limit: 500}, svc.Pagination(-1, 10000))
	assert.Equal(t, 20, svc.Pagination(3, 10).Offset())
}
