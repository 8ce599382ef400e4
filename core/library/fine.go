package library

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DefaultFinePerDay is 0.50 currency units per day late.
var DefaultFinePerDay = decimal.New(50, -2)

type FinePolicy struct {
	PerDay decimal.Decimal
}

func NewFinePolicy(perDay string) (FinePolicy, error) {
	if perDay == "" {
		return FinePolicy{PerDay: DefaultFinePerDay}, nil
	}
	amount, err := decimal.NewFromString(perDay)
	if err != nil {
		return FinePolicy{}, errors.Wrap(err, "parsing fine per day")
	}
	if amount.IsNegative() {
		return FinePolicy{}, errors.Errorf("fine per day must not be negative (got %s)", perDay)
	}
	return FinePolicy{PerDay: amount}, nil
}

// DaysLate is ceil((returned - due) / 24h), or 0 when returned on or before due.
func DaysLate(due, returned time.Time) int64 {
	if !returned.After(due) {
		return 0
	}
	late := returned.Sub(due)
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

func (p FinePolicy) Compute(due, returned time.Time) decimal.Decimal {
	return p.PerDay.Mul(decimal.NewFromInt(DaysLate(due, returned)))
}
