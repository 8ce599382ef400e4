package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	"github.com/trezcool/maktaba/tests"
)

func TestService_MigrateOldStaffLoans(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	db := f.env.DB
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Legacy", 10, 5)

	legacy := func(studentRef, librarianRef string, borrower library.Borrower) library.Loan {
		l := testutil.NewLoan(school, book.ID, borrower, time.Hour)
		l.Legacy = library.LegacyRefs{IsStaffMember: true, StudentRef: studentRef, LibrarianRef: librarianRef}
		return l
	}

	candidate := legacy(f.student1.ID, f.teacher.ID, library.StudentBorrower(f.student1.ID))
	sameRefs := legacy(f.teacher.ID, f.teacher.ID, library.StudentBorrower(f.student1.ID))
	noRef := legacy(f.student1.ID, "", library.StudentBorrower(f.student1.ID))
	notTeacher := legacy(f.student1.ID, f.librarian.ID, library.StudentBorrower(f.student1.ID))
	alreadyTeacher := legacy(f.student1.ID, f.teacher.ID, library.TeacherBorrower(f.teacher.ID))
	regular := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student2.ID), time.Hour)
	for _, l := range []library.Loan{candidate, sameRefs, noRef, notTeacher, alreadyTeacher, regular} {
		db.PutLoan(l)
	}

	report, err := svc.MigrateOldStaffLoans(ctx, school)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Loans, 1)
	assert.Equal(t, library.FlaggedLoan{
		LoanID:   candidate.ID,
		Current:  library.StudentBorrower(f.student1.ID),
		Proposed: library.TeacherBorrower(f.teacher.ID),
	}, report.Loans[0])

	// flagged, never reassigned
	got, err := f.env.LedgerRepo.GetLoan(ctx, school, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, library.StudentBorrower(f.student1.ID), got.Borrower)
	require.NotNil(t, got.Review)
	assert.Equal(t, library.TeacherBorrower(f.teacher.ID), got.Review.Proposed)

	// second run leaves the flagged loan alone
	report, err = svc.MigrateOldStaffLoans(ctx, school)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Flagged)
	assert.Equal(t, 4, report.Skipped)

	needsReview := true
	flagged, err := svc.QueryLoans(ctx, school, library.LoanQuery{NeedsReview: &needsReview}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{candidate.ID}, loanIDs(flagged))
}

func TestService_ReviewMigratedLoan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := f.env.LibrarySvc
	db := f.env.DB
	book := testutil.CreateBook(t, f.env.LedgerRepo, school, "Review", 10, 7)

	flagged := func() library.Loan {
		l := testutil.NewLoan(school, book.ID, library.StudentBorrower(f.student1.ID), time.Hour)
		l.Legacy = library.LegacyRefs{IsStaffMember: true, StudentRef: f.student1.ID, LibrarianRef: f.teacher.ID}
		l.Review = &library.Review{Proposed: library.TeacherBorrower(f.teacher.ID), FlaggedAt: time.Now().UTC()}
		db.PutLoan(l)
		return l
	}

	t.Run("approve", func(t *testing.T) {
		l := flagged()
		got, err := svc.ReviewMigratedLoan(ctx, school, l.ID, true, "checked with the register")
		require.NoError(t, err)
		assert.Equal(t, library.TeacherBorrower(f.teacher.ID), got.Borrower)
		assert.Nil(t, got.Review)
		assert.Equal(t, "checked with the register", got.Notes)
		require.NotNil(t, got.BorrowerDetails)
		assert.Equal(t, member.KindTeacher, got.BorrowerDetails.Kind)

		_, err = svc.ReviewMigratedLoan(ctx, school, l.ID, true, "")
		assert.Equal(t, library.ErrNotUnderReview, errors.Cause(err))
	})

	t.Run("approve would duplicate an active loan", func(t *testing.T) {
		l := flagged() // the proposed borrower already holds the loan approved above
		_, err := svc.ReviewMigratedLoan(ctx, school, l.ID, true, "")
		assert.Equal(t, library.ErrDuplicateLoan, errors.Cause(err))

		got, err := f.env.LedgerRepo.GetLoan(ctx, school, l.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Review)
	})

	t.Run("reject", func(t *testing.T) {
		l := flagged()
		got, err := svc.ReviewMigratedLoan(ctx, school, l.ID, false, "")
		require.NoError(t, err)
		assert.Equal(t, library.StudentBorrower(f.student1.ID), got.Borrower)
		assert.Nil(t, got.Review)

		// no longer a migration candidate
		report, err := svc.MigrateOldStaffLoans(ctx, school)
		require.NoError(t, err)
		for _, fl := range report.Loans {
			assert.NotEqual(t, l.ID, fl.LoanID)
		}
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := svc.ReviewMigratedLoan(ctx, school, "nope", true, "")
		assert.True(t, library.IsNotFound(err))
	})
}
