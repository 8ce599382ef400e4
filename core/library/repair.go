package library

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

type (
	BookRepair struct {
		BookID string       `json:"bookId"`
		Title  string       `json:"title"`
		Before Availability `json:"before"`
		After  Availability `json:"after"`
	}

	RepairReport struct {
		Checked int          `json:"checked"`
		Fixed   int          `json:"fixed"`
		Failed  int          `json:"failed"`
		Books   []BookRepair `json:"books"`
		Errors  []ItemError  `json:"errors,omitempty"`
	}

	CleanupReport struct {
		Scanned       int         `json:"scanned"`
		CleanedCount  int         `json:"cleanedCount"`
		RestoredBooks int         `json:"restoredBooks"`
		Failed        int         `json:"failed"`
		Loans         []string    `json:"removedLoans"`
		Errors        []ItemError `json:"errors,omitempty"`
	}
)

// FixAvailability recomputes the availability of every book of a school from its active loans.
func (svc *Service) FixAvailability(ctx context.Context, school string) (RepairReport, error) {
	books, err := svc.repo.QueryBooks(ctx, BookFilter{School: school}, nil)
	if err != nil {
		return RepairReport{}, errors.Wrap(err, "querying books")
	}
	report := svc.recomputeBooks(ctx, books)
	svc.logger.Info("availability fixed", map[string]interface{}{
		"school":  school,
		"checked": report.Checked,
		"fixed":   report.Fixed,
		"failed":  report.Failed,
	})
	return report, nil
}

// RestoreAvailability repairs books stuck out of stock. A book without active loans gets all
// its copies back; the others are recomputed from their active loans.
func (svc *Service) RestoreAvailability(ctx context.Context, school string) (RepairReport, error) {
	books, err := svc.repo.QueryBooks(ctx, BookFilter{School: school, Status: BookOutOfStock}, nil)
	if err != nil {
		return RepairReport{}, errors.Wrap(err, "querying out of stock books")
	}
	report := svc.recomputeBooks(ctx, books)
	svc.logger.Info("availability restored", map[string]interface{}{
		"school":  school,
		"checked": report.Checked,
		"fixed":   report.Fixed,
		"failed":  report.Failed,
	})
	return report, nil
}

func (svc *Service) recomputeBooks(ctx context.Context, books []Book) RepairReport {
	report := RepairReport{Books: []BookRepair{}}
	for _, b := range books {
		report.Checked++
		before, after, err := svc.repo.RecomputeAvailability(ctx, b.ID, BookAdjustment{})
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ID: b.ID, Error: err.Error()})
			metricRepairFailures.Add(1)
			svc.logger.Error("recomputing availability", errors.Wrap(err, b.ID))
			continue
		}
		if before.Availability() == after.Availability() {
			continue
		}
		report.Fixed++
		report.Books = append(report.Books, BookRepair{
			BookID: after.ID,
			Title:  after.Title,
			Before: before.Availability(),
			After:  after.Availability(),
		})
		metricDriftDetected.Add(1)
		metricBooksRepaired.Add(1)
		svc.logDrift("availability drift repaired", before, after)
	}
	return report
}

// CleanupOrphanedLoans removes the loans of a school whose book or borrower is missing or
// cannot be resolved. Active orphans give their copy back first when their book exists.
func (svc *Service) CleanupOrphanedLoans(ctx context.Context, school string) (CleanupReport, error) {
	orphans, scanned, err := svc.findOrphans(ctx, school)
	if err != nil {
		return CleanupReport{}, err
	}

	report := CleanupReport{Scanned: scanned, Loans: []string{}}
	for _, o := range orphans {
		loan, restored, err := svc.repo.DeleteLoan(ctx, school, o.ID)
		if err != nil {
			if IsNotFound(err) { // removed concurrently
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ID: o.ID, Error: err.Error()})
			metricRepairFailures.Add(1)
			svc.logger.Error("deleting orphaned loan", errors.Wrap(err, o.ID))
			continue
		}
		report.CleanedCount++
		report.Loans = append(report.Loans, loan.ID)
		metricOrphansRemoved.Add(1)
		if restored {
			report.RestoredBooks++
		}
		svc.logger.Warn("orphaned loan removed", map[string]interface{}{
			"school":   school,
			"loan":     loan.ID,
			"book":     loan.BookID,
			"borrower": loan.Borrower.String(),
			"status":   string(loan.Status),
			"restored": restored,
		})
	}

	svc.logger.Info("orphaned loans cleaned up", map[string]interface{}{
		"school":        school,
		"scanned":       report.Scanned,
		"cleaned":       report.CleanedCount,
		"restoredBooks": report.RestoredBooks,
		"failed":        report.Failed,
	})
	return report, nil
}

// findOrphans scans every loan of a school. A loan without a book or a borrower is always an
// orphan. Loans under review, or that the staff-loan migration can still flag, keep an
// unresolved borrower.
func (svc *Service) findOrphans(ctx context.Context, school string) ([]Loan, int, error) {
	loans, err := svc.repo.QueryLoans(ctx, LoanFilter{School: school}, core.Pagination{}, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying loans")
	}

	bookIDs := make([]string, 0, len(loans))
	memberIDs := make([]string, 0, len(loans))
	for _, l := range loans {
		if l.BookID != "" {
			bookIDs = append(bookIDs, l.BookID)
		}
		if l.Borrower.ID != "" {
			memberIDs = append(memberIDs, l.Borrower.ID)
		}
	}
	books, err := svc.booksByID(ctx, school, bookIDs)
	if err != nil {
		return nil, 0, errors.Wrap(err, "finding books")
	}
	members, err := svc.members.GetMany(ctx, school, memberIDs)
	if err != nil {
		return nil, 0, errors.Wrap(err, "finding borrowers")
	}

	var orphans []Loan
	for _, l := range loans {
		if _, ok := books[l.BookID]; !ok || l.Borrower.IsZero() {
			orphans = append(orphans, l)
			continue
		}
		if l.Review != nil || l.migrationPending() {
			continue
		}
		if m, ok := members[l.Borrower.ID]; !ok || m.Kind != l.Borrower.Kind {
			orphans = append(orphans, l)
		}
	}
	return orphans, len(loans), nil
}
