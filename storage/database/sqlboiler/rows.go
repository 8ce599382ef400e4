package boiledrepos

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
)

const (
	bookTable = "books"
	loanTable = "loans"
)

var bookColumns = []string{
	"id", "school", "title", "author", "isbn", "category",
	"quantity", "available_quantity", "status", "created_at", "updated_at",
}

var loanColumns = []string{
	"id", "school", "book_id", "borrower_kind", "borrower_id", "issued_by",
	"issue_date", "due_date", "return_date", "status", "fine", "notes",
	"is_staff_member", "legacy_student_ref", "legacy_librarian_ref",
	"review_proposed_kind", "review_proposed_id", "review_note", "review_flagged_at",
	"created_at", "updated_at",
}

type bookRow struct {
	ID                string    `boil:"id"`
	School            string    `boil:"school"`
	Title             string    `boil:"title"`
	Author            string    `boil:"author"`
	ISBN              string    `boil:"isbn"`
	Category          string    `boil:"category"`
	Quantity          int       `boil:"quantity"`
	AvailableQuantity int       `boil:"available_quantity"`
	Status            string    `boil:"status"`
	CreatedAt         time.Time `boil:"created_at"`
	UpdatedAt         time.Time `boil:"updated_at"`
}

func unboilBook(r bookRow) library.Book {
	return library.Book{
		ID:                r.ID,
		School:            r.School,
		Title:             r.Title,
		Author:            r.Author,
		ISBN:              r.ISBN,
		Category:          r.Category,
		Quantity:          r.Quantity,
		AvailableQuantity: r.AvailableQuantity,
		Status:            library.BookStatus(r.Status),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func unboilBooks(rows []bookRow) []library.Book {
	books := make([]library.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, unboilBook(r))
	}
	return books
}

type loanRow struct {
	ID                 string          `boil:"id"`
	School             string          `boil:"school"`
	BookID             null.String     `boil:"book_id"`
	BorrowerKind       null.String     `boil:"borrower_kind"`
	BorrowerID         null.String     `boil:"borrower_id"`
	IssuedBy           string          `boil:"issued_by"`
	IssueDate          time.Time       `boil:"issue_date"`
	DueDate            time.Time       `boil:"due_date"`
	ReturnDate         null.Time       `boil:"return_date"`
	Status             string          `boil:"status"`
	Fine               decimal.Decimal `boil:"fine"`
	Notes              string          `boil:"notes"`
	IsStaffMember      bool            `boil:"is_staff_member"`
	LegacyStudentRef   string          `boil:"legacy_student_ref"`
	LegacyLibrarianRef string          `boil:"legacy_librarian_ref"`
	ReviewProposedKind null.String     `boil:"review_proposed_kind"`
	ReviewProposedID   null.String     `boil:"review_proposed_id"`
	ReviewNote         null.String     `boil:"review_note"`
	ReviewFlaggedAt    null.Time       `boil:"review_flagged_at"`
	CreatedAt          time.Time       `boil:"created_at"`
	UpdatedAt          time.Time       `boil:"updated_at"`
}

func boilLoan(l library.Loan) loanRow {
	r := loanRow{
		ID:                 l.ID,
		School:             l.School,
		BookID:             null.NewString(l.BookID, l.BookID != ""),
		BorrowerKind:       null.NewString(string(l.Borrower.Kind), l.Borrower.Kind != ""),
		BorrowerID:         null.NewString(l.Borrower.ID, l.Borrower.ID != ""),
		IssuedBy:           l.IssuedBy,
		IssueDate:          l.IssueDate.UTC(),
		DueDate:            l.DueDate.UTC(),
		ReturnDate:         null.TimeFromPtr(l.ReturnDate),
		Status:             string(l.Status),
		Fine:               l.Fine,
		Notes:              l.Notes,
		IsStaffMember:      l.Legacy.IsStaffMember,
		LegacyStudentRef:   l.Legacy.StudentRef,
		LegacyLibrarianRef: l.Legacy.LibrarianRef,
		CreatedAt:          l.CreatedAt.UTC(),
		UpdatedAt:          l.UpdatedAt.UTC(),
	}
	if l.Review != nil {
		r.ReviewProposedKind = null.StringFrom(string(l.Review.Proposed.Kind))
		r.ReviewProposedID = null.StringFrom(l.Review.Proposed.ID)
		r.ReviewNote = null.StringFrom(l.Review.Note)
		r.ReviewFlaggedAt = null.TimeFrom(l.Review.FlaggedAt.UTC())
	}
	return r
}

func unboilLoan(r loanRow) library.Loan {
	l := library.Loan{
		ID:     r.ID,
		School: r.School,
		BookID: r.BookID.String,
		Borrower: library.Borrower{
			Kind: member.Kind(r.BorrowerKind.String),
			ID:   r.BorrowerID.String,
		},
		IssuedBy:  r.IssuedBy,
		IssueDate: r.IssueDate.UTC(),
		DueDate:   r.DueDate.UTC(),
		Status:    library.LoanStatus(r.Status),
		Fine:      r.Fine,
		Notes:     r.Notes,
		Legacy: library.LegacyRefs{
			IsStaffMember: r.IsStaffMember,
			StudentRef:    r.LegacyStudentRef,
			LibrarianRef:  r.LegacyLibrarianRef,
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.ReturnDate.Valid {
		t := r.ReturnDate.Time.UTC()
		l.ReturnDate = &t
	}
	if r.ReviewProposedID.Valid {
		l.Review = &library.Review{
			Proposed:  library.Borrower{Kind: member.Kind(r.ReviewProposedKind.String), ID: r.ReviewProposedID.String},
			Note:      r.ReviewNote.String,
			FlaggedAt: r.ReviewFlaggedAt.Time.UTC(),
		}
	}
	return l
}

func unboilLoans(rows []loanRow) []library.Loan {
	loans := make([]library.Loan, 0, len(rows))
	for _, r := range rows {
		loans = append(loans, unboilLoan(r))
	}
	return loans
}
