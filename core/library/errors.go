package library

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnavailable         = errors.New("book not available")
	ErrDuplicateLoan       = errors.New("borrower already holds an active loan for this book")
	ErrAlreadyReturned     = errors.New("loan already returned")
	ErrInvalidBorrower     = errors.New("invalid borrower")
	ErrNotUnderReview      = errors.New("loan is not flagged for review")
	ErrDuplicateISBN       = errors.New("a book with this isbn already exists")
	ErrQuantityBelowActive = errors.New("quantity cannot be lower than the number of active loans")

	ErrBookNotFound     = &NotFoundError{Entity: "book"}
	ErrLoanNotFound     = &NotFoundError{Entity: "loan"}
	ErrBorrowerNotFound = &NotFoundError{Entity: "borrower"}
)

// MissingFieldError lists the required fields absent from a request.
type MissingFieldError struct {
	Fields []string
}

func (err *MissingFieldError) Error() string {
	return "missing required fields: " + strings.Join(err.Fields, ", ")
}

// NotFoundError is returned when a referenced entity does not exist (in the caller's school).
type NotFoundError struct {
	Entity string
}

func (err *NotFoundError) Error() string {
	return err.Entity + " not found"
}

// IsNotFound reports whether err (or its cause) is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// ItemError records the failure of a single item in a batch operation.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
