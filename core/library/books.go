package library

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

func (svc *Service) CreateBook(ctx context.Context, nb NewBook) (Book, error) {
	now := svc.now()
	quantity := 0
	if nb.Quantity != nil {
		quantity = *nb.Quantity
	}
	book := Book{
		ID:                uuid.New().String(),
		School:            nb.School,
		Title:             nb.Title,
		Author:            nb.Author,
		ISBN:              nb.ISBN,
		Category:          nb.Category,
		Quantity:          quantity,
		AvailableQuantity: quantity,
		Status:            StatusFor(BookAvailable, quantity),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	book, err := svc.repo.CreateBook(ctx, book)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateISBN {
			return Book{}, core.NewValidationError(err, core.FieldError{Field: "isbn", Error: err.Error()})
		}
		return Book{}, errors.Wrap(err, "creating book")
	}
	return book, nil
}

func (svc *Service) GetBook(ctx context.Context, school, id string) (Book, error) {
	return svc.repo.GetBook(ctx, school, id)
}

func (svc *Service) QueryBooks(ctx context.Context, filter BookFilter, ordering []core.DBOrdering) ([]Book, error) {
	filter.Clean()
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: "status must be one of: available, out_of_stock, discontinued",
		})
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "title", Ascending: true}}
	}
	return svc.repo.QueryBooks(ctx, filter, ordering)
}

// SetBookQuantity changes the number of owned copies and recomputes availability from active loans.
func (svc *Service) SetBookQuantity(ctx context.Context, school, id string, quantity int) (Book, error) {
	return svc.adjustBook(ctx, school, id, BookAdjustment{Quantity: &quantity})
}

// DiscontinueBook takes a book out of circulation. Active loans can still be returned.
func (svc *Service) DiscontinueBook(ctx context.Context, school, id string) (Book, error) {
	return svc.adjustBook(ctx, school, id, BookAdjustment{Discontinue: true})
}

func (svc *Service) adjustBook(ctx context.Context, school, id string, adj BookAdjustment) (Book, error) {
	book, err := svc.repo.GetBook(ctx, school, id)
	if err != nil {
		return Book{}, errors.Wrap(err, "finding book")
	}
	before, after, err := svc.repo.RecomputeAvailability(ctx, book.ID, adj)
	if err != nil {
		if errors.Cause(err) == ErrQuantityBelowActive {
			return Book{}, core.NewValidationError(err, core.FieldError{Field: "quantity", Error: err.Error()})
		}
		return Book{}, errors.Wrap(err, "adjusting book")
	}
	svc.logger.Info("book adjusted", map[string]interface{}{
		"school":          after.School,
		"book":            after.ID,
		"quantityBefore":  before.Quantity,
		"quantityAfter":   after.Quantity,
		"availableBefore": before.AvailableQuantity,
		"availableAfter":  after.AvailableQuantity,
		"status":          string(after.Status),
	})
	return after, nil
}
