package library

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

func init() {
	// fines are rendered as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Book statuses
type BookStatus string

const (
	BookAvailable    BookStatus = "available"
	BookOutOfStock   BookStatus = "out_of_stock"
	BookDiscontinued BookStatus = "discontinued"
)

func (s BookStatus) IsValid() bool {
	switch s {
	case BookAvailable, BookOutOfStock, BookDiscontinued:
		return true
	}
	return false
}

type Book struct {
	ID                string     `json:"id"`
	School            string     `json:"school"`
	Title             string     `json:"title"`
	Author            string     `json:"author"`
	ISBN              string     `json:"isbn"`
	Category          string     `json:"category"`
	Quantity          int        `json:"quantity"`
	AvailableQuantity int        `json:"availableQuantity"`
	Status            BookStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"` // UTC
	UpdatedAt         time.Time  `json:"updatedAt"` // UTC
}

// IsLoanable reports whether a copy can be issued right now.
func (b Book) IsLoanable() bool {
	return b.Status != BookDiscontinued && b.AvailableQuantity > 0
}

func (b Book) Availability() Availability {
	return Availability{AvailableQuantity: b.AvailableQuantity, Status: b.Status}
}

func (b Book) Summary() BookSummary {
	return BookSummary{ID: b.ID, Title: b.Title, Author: b.Author, ISBN: b.ISBN, Category: b.Category}
}

type BookSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	ISBN     string `json:"isbn"`
	Category string `json:"category,omitempty"`
}

type Availability struct {
	AvailableQuantity int        `json:"availableQuantity"`
	Status            BookStatus `json:"status"`
}

// Loan statuses. Overdue is derived at read time; stored "overdue" values only come from legacy data.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
	loanActive   LoanStatus = "active" // query filter only
)

// ActiveStatuses are the stored statuses holding a copy of a book.
var ActiveStatuses = []LoanStatus{LoanBorrowed, LoanOverdue}

func (s LoanStatus) IsActive() bool {
	return s == LoanBorrowed || s == LoanOverdue
}

// Borrower is exactly one of Student(id), Teacher(id) or Librarian(id).
type Borrower struct {
	Kind member.Kind `json:"kind"`
	ID   string      `json:"id"`
}

func StudentBorrower(id string) Borrower   { return Borrower{Kind: member.KindStudent, ID: id} }
func TeacherBorrower(id string) Borrower   { return Borrower{Kind: member.KindTeacher, ID: id} }
func LibrarianBorrower(id string) Borrower { return Borrower{Kind: member.KindLibrarian, ID: id} }

// NewBorrower builds a validated Borrower.
func NewBorrower(kind member.Kind, id string) (Borrower, error) {
	b := Borrower{Kind: kind, ID: id}
	return b, b.Validate()
}

func (b Borrower) IsZero() bool { return b.Kind == "" && b.ID == "" }

func (b Borrower) Validate() error {
	if !b.Kind.IsValid() || b.ID == "" {
		return ErrInvalidBorrower
	}
	return nil
}

func (b Borrower) String() string {
	if b.IsZero() {
		return "<none>"
	}
	return string(b.Kind) + ":" + b.ID
}

// LegacyRefs are the raw references of loans imported from the previous system.
type LegacyRefs struct {
	IsStaffMember bool
	StudentRef    string
	LibrarianRef  string
}

// Review is set on loans whose borrower was inferred by a data migration.
type Review struct {
	Proposed  Borrower  `json:"proposedBorrower"`
	Note      string    `json:"note"`
	FlaggedAt time.Time `json:"flaggedAt"`
}

type Loan struct {
	ID         string          `json:"id"`
	School     string          `json:"school"`
	BookID     string          `json:"bookId"`   // empty for legacy rows that lost their book
	Borrower   Borrower        `json:"borrower"` // zero for legacy rows that lost their borrower
	IssuedBy   string          `json:"issuedBy,omitempty"`
	IssueDate  time.Time       `json:"issueDate"`
	DueDate    time.Time       `json:"dueDate"`
	ReturnDate *time.Time      `json:"returnDate"`
	Status     LoanStatus      `json:"status"`
	Fine       decimal.Decimal `json:"fine"`
	Notes      string          `json:"notes,omitempty"`
	Review     *Review         `json:"review,omitempty"`
	Legacy     LegacyRefs      `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (l Loan) IsActive() bool { return l.Status.IsActive() }

// IsOverdue is true for active loans whose due date has passed.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.IsActive() && l.DueDate.Before(now)
}

// EffectiveStatus is the status observed at `now`.
func (l Loan) EffectiveStatus(now time.Time) LoanStatus {
	switch {
	case !l.IsActive():
		return l.Status
	case l.IsOverdue(now):
		return LoanOverdue
	default:
		return LoanBorrowed
	}
}

// LoanDetail is a Loan populated with display fields, as returned to clients.
type LoanDetail struct {
	Loan
	Status          LoanStatus      `json:"status"` // effective status
	IsOverdue       bool            `json:"isOverdue"`
	Book            *BookSummary    `json:"book"`
	BorrowerDetails *member.Summary `json:"borrowerDetails"`
	Issuer          *member.Summary `json:"issuer,omitempty"`
}

type DeletedLoan struct {
	LoanID               string `json:"loanId"`
	BookID               string `json:"bookId"`
	WasActive            bool   `json:"wasActive"`
	RestoredAvailability bool   `json:"restoredAvailability"`
}

// IssueLoan contains the information needed to issue a Loan.
// StudentID is the legacy name of BorrowerID and LibrarianID the legacy name of IssuedBy.
type IssueLoan struct {
	BookID        string `json:"bookId" validate:"required"`
	BorrowerID    string `json:"borrowerId" validate:"required"`
	StudentID     string `json:"studentId,omitempty" validate:"-"`
	BorrowerType  string `json:"borrowerType" validate:"omitempty,memberkind"`
	DueDate       string `json:"dueDate" validate:"required,date"`
	IssuedBy      string `json:"issuedBy"`
	LibrarianID   string `json:"librarianId,omitempty" validate:"-"`
	Notes         string `json:"notes"`
	IsStaffMember bool   `json:"isStaffMember"`
}

func (il *IssueLoan) Clean() {
	il.BookID = core.CleanString(il.BookID)
	il.BorrowerID = core.CleanString(il.BorrowerID)
	if il.BorrowerID == "" {
		il.BorrowerID = core.CleanString(il.StudentID)
	}
	il.StudentID = ""
	il.BorrowerType = core.CleanString(il.BorrowerType, true /* lower */)
	il.DueDate = core.CleanString(il.DueDate)
	il.IssuedBy = core.CleanString(il.IssuedBy)
	if il.IssuedBy == "" {
		il.IssuedBy = core.CleanString(il.LibrarianID)
	}
	il.LibrarianID = ""
	il.Notes = core.CleanString(il.Notes)
}

// Validate reports missing fields first (as a *MissingFieldError), then malformed ones.
func (il *IssueLoan) Validate(validate *validator.Validate) error {
	il.Clean()
	if err := il.missingFields(); err != nil {
		return err
	}
	return validate.Struct(il)
}

func (il *IssueLoan) missingFields() error {
	var missing []string
	if il.BookID == "" {
		missing = append(missing, "bookId")
	}
	if il.BorrowerID == "" {
		missing = append(missing, "borrowerId")
	}
	if il.DueDate == "" {
		missing = append(missing, "dueDate")
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

type ReturnLoan struct {
	Notes string `json:"notes"`
}

type ReviewDecision struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note"`
}

func (rd *ReviewDecision) Validate(validate *validator.Validate) error {
	rd.Note = core.CleanString(rd.Note)
	if rd.Approve == nil {
		return &MissingFieldError{Fields: []string{"approve"}}
	}
	return validate.Struct(rd)
}

// NewBook contains information needed to create a new Book.
type NewBook struct {
	School   string `json:"school" validate:"required,alphanum_"`
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author" validate:"required"`
	ISBN     string `json:"isbn" validate:"required,max=20"`
	Category string `json:"category"`
	Quantity *int   `json:"quantity" validate:"required,gte=0"`
}

func (nb *NewBook) Validate(validate *validator.Validate) error {
	nb.School = core.CleanString(nb.School)
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.ISBN = core.CleanString(nb.ISBN)
	nb.Category = core.CleanString(nb.Category)
	return validate.Struct(nb)
}

type SetQuantity struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

func (sq *SetQuantity) Validate(validate *validator.Validate) error { return validate.Struct(sq) }

type BookFilter struct {
	School string     `query:"-"`
	Status BookStatus `query:"status"`
	Search string     `query:"search"`
}

func (bf *BookFilter) Clean() {
	bf.Status = BookStatus(core.CleanString(string(bf.Status), true /* lower */))
	bf.Search = core.CleanString(bf.Search)
}

// LoanQuery is the client-facing loan filter.
type LoanQuery struct {
	Status       string `query:"status"` // borrowed, overdue, returned or active
	BorrowerType string `query:"borrowerType"`
	BorrowerID   string `query:"borrowerId"`
	StudentID    string `query:"studentId"`
	BookID       string `query:"bookId"`
	Class        string `query:"class"`
	NeedsReview  *bool  `query:"-"` // bound by hand: the binder cannot set nil pointers
	Page         int    `query:"page"`
	Limit        int    `query:"limit"`
}

func (lq *LoanQuery) Clean() {
	lq.Status = core.CleanString(lq.Status, true /* lower */)
	lq.BorrowerType = core.CleanString(lq.BorrowerType, true /* lower */)
	lq.BorrowerID = core.CleanString(lq.BorrowerID)
	if lq.BorrowerID == "" {
		lq.BorrowerID = core.CleanString(lq.StudentID)
	}
	lq.StudentID = ""
	lq.BookID = core.CleanString(lq.BookID)
	lq.Class = core.CleanString(lq.Class)
}

// LoanFilter is the storage-level loan filter. Fields are ANDed; zero values are ignored.
type LoanFilter struct {
	School       string
	Statuses     []LoanStatus // stored status, any of
	DueBefore    time.Time    // due_date < DueBefore
	DueFrom      time.Time    // due_date >= DueFrom
	BookID       string
	BorrowerKind member.Kind
	BorrowerIDs  []string
	NeedsReview  *bool
	LegacyStaff  bool // legacy staff loans without a teacher borrower
}

// LoanOrderingFields maps the client ordering names to storage columns.
var LoanOrderingFields = []string{"issueDate", "dueDate", "returnDate", "status", "createdAt"}

// BookOrderingFields maps the client ordering names to storage columns.
var BookOrderingFields = []string{"title", "author", "isbn", "category", "quantity", "availableQuantity", "createdAt"}
