package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	inmemdb "github.com/trezcool/maktaba/storage/database/inmem"
)

// Env bundles an in-memory database with the services built on top of it.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	MemberRepo member.Repository
	LedgerRepo library.Repository
	MemberSvc  *member.Service
	LibrarySvc *library.Service
}

// NewInMemoryEnv sets up in-memory repositories and services.
func NewInMemoryEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	db := inmemdb.Open()
	env := &Env{
		Conf:       conf,
		DB:         db,
		MemberRepo: inmemdb.NewMemberRepository(db),
		LedgerRepo: inmemdb.NewLedgerRepository(db),
	}
	env.MemberSvc = member.NewService(env.MemberRepo)
	env.LibrarySvc = library.NewService(env.LedgerRepo, env.MemberSvc, core.NopLogger{}, conf)
	return env
}

func CreateMember(t *testing.T, repo member.Repository, school string, kind member.Kind, name string, extra ...func(*member.Member)) member.Member {
	t.Helper()

	now := time.Now().UTC()
	m := member.Member{
		School:    school,
		Kind:      kind,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, fn := range extra {
		fn(&m)
	}
	m, err := repo.CreateMember(context.Background(), m)
	if err != nil {
		t.Fatalf("CreateMember(): %v", err)
	}
	return m
}

// InClass sets the class of a student fixture.
func InClass(class string) func(*member.Member) {
	return func(m *member.Member) { m.Class = class }
}

// AsAdmin marks a librarian fixture as admin.
func AsAdmin(m *member.Member) { m.IsAdmin = true }

func CreateBook(t *testing.T, repo library.Repository, school, title string, quantity, available int) library.Book {
	t.Helper()

	now := time.Now().UTC()
	b := library.Book{
		ID:                uuid.New().String(),
		School:            school,
		Title:             title,
		Author:            "Author of " + title,
		ISBN:              uuid.New().String()[:13],
		Quantity:          quantity,
		AvailableQuantity: available,
		Status:            library.StatusFor(library.BookAvailable, available),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	b, err := repo.CreateBook(context.Background(), b)
	if err != nil {
		t.Fatalf("CreateBook(): %v", err)
	}
	return b
}

// NewLoan builds an active loan fixture, due in `due` from now.
func NewLoan(school, bookID string, borrower library.Borrower, due time.Duration) library.Loan {
	now := time.Now().UTC()
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

func BoolPtr(b bool) *bool { return &b }

func IntPtr(i int) *int { return &i }
