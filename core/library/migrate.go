package library

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

type (
	FlaggedLoan struct {
		LoanID   string   `json:"loanId"`
		Current  Borrower `json:"currentBorrower"`
		Proposed Borrower `json:"proposedBorrower"`
	}

	SkippedLoan struct {
		LoanID string `json:"loanId"`
		Reason string `json:"reason"`
	}

	MigrationReport struct {
		Scanned int           `json:"scanned"`
		Flagged int           `json:"flagged"`
		Skipped int           `json:"skipped"`
		Failed  int           `json:"failed"`
		Loans   []FlaggedLoan `json:"flaggedLoans"`
		Skips   []SkippedLoan `json:"skippedLoans"`
		Errors  []ItemError   `json:"errors,omitempty"`
	}
)

// awaitsStaffMigration is true for legacy staff loans that do not point at a teacher yet.
func (l Loan) awaitsStaffMigration() bool {
	return l.Legacy.IsStaffMember && l.Borrower.Kind != member.KindTeacher
}

// migrationPending is true for legacy staff loans MigrateOldStaffLoans can still flag:
// the librarian reference is set and differs from the student reference.
func (l Loan) migrationPending() bool {
	ref := l.Legacy.LibrarianRef
	return l.awaitsStaffMigration() && ref != "" && ref != l.Legacy.StudentRef
}

// MigrateOldStaffLoans looks for legacy staff loans without a teacher borrower and infers the
// teacher from the legacy librarian reference when it differs from the legacy student reference.
// The inference is not trusted: matching loans are flagged for manual review, never reassigned.
func (svc *Service) MigrateOldStaffLoans(ctx context.Context, school string) (MigrationReport, error) {
	loans, err := svc.repo.QueryLoans(ctx, LoanFilter{School: school, LegacyStaff: true}, core.Pagination{}, nil)
	if err != nil {
		return MigrationReport{}, errors.Wrap(err, "querying legacy staff loans")
	}

	report := MigrationReport{Loans: []FlaggedLoan{}, Skips: []SkippedLoan{}}
	skip := func(l Loan, reason string) {
		report.Skipped++
		report.Skips = append(report.Skips, SkippedLoan{LoanID: l.ID, Reason: reason})
	}

	now := svc.now()
	for _, l := range loans {
		report.Scanned++
		if l.Review != nil {
			skip(l, "already flagged for review")
			continue
		}
		candidate := l.Legacy.LibrarianRef
		if candidate == "" {
			skip(l, "no librarian reference")
			continue
		}
		if candidate == l.Legacy.StudentRef {
			skip(l, "librarian reference equals student reference")
			continue
		}
		teacher, err := svc.members.Find(ctx, school, member.KindTeacher, candidate)
		if err != nil {
			if errors.Cause(err) == member.ErrNotFound {
				skip(l, "librarian reference is not a teacher")
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ID: l.ID, Error: err.Error()})
			metricRepairFailures.Add(1)
			svc.logger.Error("finding candidate teacher", errors.Wrap(err, l.ID))
			continue
		}

		proposed := TeacherBorrower(teacher.ID)
		l.Review = &Review{
			Proposed:  proposed,
			Note:      fmt.Sprintf("inferred from legacy librarian reference %s (student reference %q)", candidate, l.Legacy.StudentRef),
			FlaggedAt: now,
		}
		if _, err = svc.repo.UpdateLoanReview(ctx, l); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ID: l.ID, Error: err.Error()})
			metricRepairFailures.Add(1)
			svc.logger.Error("flagging legacy staff loan", errors.Wrap(err, l.ID))
			continue
		}
		report.Flagged++
		report.Loans = append(report.Loans, FlaggedLoan{LoanID: l.ID, Current: l.Borrower, Proposed: proposed})
		metricLoansFlagged.Add(1)
		svc.logger.Warn("legacy staff loan flagged for review", map[string]interface{}{
			"school":   school,
			"loan":     l.ID,
			"current":  l.Borrower.String(),
			"proposed": proposed.String(),
		})
	}

	svc.logger.Info("legacy staff loans migrated", map[string]interface{}{
		"school":  school,
		"scanned": report.Scanned,
		"flagged": report.Flagged,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
	return report, nil
}

// ReviewMigratedLoan settles a loan flagged by MigrateOldStaffLoans. Approving assigns the
// proposed borrower; rejecting drops the proposal and the legacy staff marker.
func (svc *Service) ReviewMigratedLoan(ctx context.Context, school, loanID string, approve bool, note string) (LoanDetail, error) {
	loan, err := svc.repo.GetLoan(ctx, school, loanID)
	if err != nil {
		return LoanDetail{}, errors.Wrap(err, "finding loan")
	}
	if loan.Review == nil {
		return LoanDetail{}, ErrNotUnderReview
	}

	proposed := loan.Review.Proposed
	if approve {
		if err = proposed.Validate(); err != nil {
			return LoanDetail{}, err
		}
		if loan.IsActive() && loan.BookID != "" {
			exists, err := svc.repo.ActiveLoanExists(ctx, loan.BookID, proposed)
			if err != nil {
				return LoanDetail{}, errors.Wrap(err, "checking active loans")
			}
			if exists {
				return LoanDetail{}, ErrDuplicateLoan
			}
		}
		loan.Borrower = proposed
	}
	loan.Review = nil
	loan.Legacy.IsStaffMember = false
	loan.Notes = appendNote(loan.Notes, core.CleanString(note))
	loan.UpdatedAt = svc.now()

	if loan, err = svc.repo.UpdateLoanReview(ctx, loan); err != nil {
		return LoanDetail{}, errors.Wrap(err, "updating loan review")
	}
	svc.logger.Info("legacy staff loan reviewed", map[string]interface{}{
		"school":   loan.School,
		"loan":     loan.ID,
		"approved": approve,
		"borrower": loan.Borrower.String(),
		"proposed": proposed.String(),
	})
	return svc.populateOne(ctx, loan)
}
