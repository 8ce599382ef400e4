package library

// The functions below are the only rules allowed to change a Book's availability.
// Storage implementations apply them inside their atomic units.

// StatusFor returns the status matching `available` copies.
func StatusFor(current BookStatus, available int) BookStatus {
	if current == BookDiscontinued {
		return BookDiscontinued
	}
	if available <= 0 {
		return BookOutOfStock
	}
	return BookAvailable
}

// TakeCopy decrements the available copies of b by one.
func TakeCopy(b Book) (Book, error) {
	if !b.IsLoanable() {
		return b, ErrUnavailable
	}
	b.AvailableQuantity--
	b.Status = StatusFor(b.Status, b.AvailableQuantity)
	return b, nil
}

// PutBackCopy increments the available copies of b by one, capped at its quantity.
func PutBackCopy(b Book) Book {
	if b.AvailableQuantity < b.Quantity {
		b.AvailableQuantity++
	}
	if b.AvailableQuantity > b.Quantity {
		b.AvailableQuantity = b.Quantity
	}
	b.Status = StatusFor(b.Status, b.AvailableQuantity)
	return b
}

// BookAdjustment optionally changes a book's total quantity or discontinues it during a recompute.
type BookAdjustment struct {
	Quantity    *int
	Discontinue bool
}

// Recompute sets b's availability from the number of active loans holding it:
// available = max(0, quantity - active).
func Recompute(b Book, active int, adj BookAdjustment) (Book, error) {
	if adj.Quantity != nil {
		if *adj.Quantity < active {
			return b, ErrQuantityBelowActive
		}
		b.Quantity = *adj.Quantity
	}
	if adj.Discontinue {
		b.Status = BookDiscontinued
	}
	available := b.Quantity - active
	if available < 0 {
		available = 0
	}
	b.AvailableQuantity = available
	b.Status = StatusFor(b.Status, available)
	return b, nil
}
