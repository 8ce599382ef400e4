package inmemdb

import (
	"sync"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
)

type (
	DB struct {
		ledger *ledgerTables
		member *memberTable
	}

	// ledgerTables share one lock: every ledger operation touching a loan and its book
	// runs in a single critical section.
	ledgerTables struct {
		sync.RWMutex
		books map[string]*library.Book
		loans map[string]*library.Loan
	}

	memberTable struct {
		sync.RWMutex
		table map[string]*member.Member
	}
)

func Open() *DB {
	return &DB{
		ledger: &ledgerTables{
			books: make(map[string]*library.Book),
			loans: make(map[string]*library.Loan),
		},
		member: &memberTable{table: make(map[string]*member.Member)},
	}
}

// PutBook stores b as is, bypassing every ledger rule. Used to seed fixtures and legacy data.
func (db *DB) PutBook(b library.Book) {
	db.ledger.Lock()
	defer db.ledger.Unlock()
	db.ledger.books[b.ID] = &b
}

// PutLoan stores l as is, bypassing every ledger rule. Used to seed fixtures and legacy data.
func (db *DB) PutLoan(l library.Loan) {
	db.ledger.Lock()
	defer db.ledger.Unlock()
	db.ledger.loans[l.ID] = &l
}

// Reset empties every table.
func (db *DB) Reset() {
	db.ledger.Lock()
	db.ledger.books = make(map[string]*library.Book)
	db.ledger.loans = make(map[string]*library.Loan)
	db.ledger.Unlock()

	db.member.Lock()
	db.member.table = make(map[string]*member.Member)
	db.member.Unlock()
}
