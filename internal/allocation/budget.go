package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCash means a buy would exceed the remaining cash
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrCashUnknown means the broker balance could not be read
	ErrCashUnknown = errors.New("available cash unknown")
)

// Budget tracks cash remaining during a trade session. Orders that do not fit are
// declined whole, never clipped.
type Budget struct {
	remaining decimal.Decimal
	known     bool
}

// NewBudget starts a budget with the given cash
func NewBudget(cash decimal.Decimal) *Budget {
	return &Budget{remaining: cash, known: true}
}

// UnknownBudget is used when the broker balance is unavailable; every buy is declined
func UnknownBudget() *Budget {
	return &Budget{}
}

// Known reports whether the balance was read from the broker
func (b *Budget) Known() bool {
	return b.known
}

// Remaining returns the cash left
func (b *Budget) Remaining() decimal.Decimal {
	return b.remaining
}

// Check returns nil if cost fits in the remaining cash
func (b *Budget) Check(cost decimal.Decimal) error {
	if !b.known {
		return ErrCashUnknown
	}
	if cost.GreaterThan(b.remaining) {
		return fmt.Errorf("%w: need $%s, have $%s", ErrInsufficientCash, cost.StringFixed(2), b.remaining.StringFixed(2))
	}
	return nil
}

// Spend deducts cost after a successful buy
func (b *Budget) Spend(cost decimal.Decimal) {
	b.remaining = b.remaining.Sub(cost)
}
