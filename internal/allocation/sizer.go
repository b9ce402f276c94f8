// Package allocation sizes orders from RSI strength and tracks the cash budget of a session.
package allocation

import (
	"github.com/shopspring/decimal"
)

// Weighting configures dollar allocation per trade
type Weighting struct {
	BaselineDollars   decimal.Decimal
	ExtremeMultiplier decimal.Decimal
	PrimaryMultiplier decimal.Decimal
}

// Allocation is a target dollar amount and the whole-share quantity it buys
type Allocation struct {
	Dollars  decimal.Decimal
	Quantity int64
}

// IsZero reports whether the allocation must be skipped
func (a Allocation) IsZero() bool {
	return a.Quantity <= 0
}

// Sizer computes allocations
type Sizer struct {
	extremeLow float64
	primaryLow float64
	weighting  Weighting
}

// NewSizer creates a Sizer using the entry RSI thresholds
func NewSizer(extremeLow, primaryLow float64, w Weighting) *Sizer {
	return &Sizer{extremeLow: extremeLow, primaryLow: primaryLow, weighting: w}
}

// TargetDollars returns the dollars to allocate for an RSI reading; zero when the signal is too weak
func (s *Sizer) TargetDollars(rsi float64) decimal.Decimal {
	switch {
	case rsi < s.extremeLow:
		return s.weighting.BaselineDollars.Mul(s.weighting.ExtremeMultiplier)
	case rsi < s.primaryLow:
		return s.weighting.BaselineDollars.Mul(s.weighting.PrimaryMultiplier)
	default:
		return decimal.Zero
	}
}

// Size returns the allocation for an RSI reading at price
func (s *Sizer) Size(rsi float64, price decimal.Decimal) Allocation {
	dollars := s.TargetDollars(rsi)
	if dollars.IsZero() {
		return Allocation{Dollars: decimal.Zero}
	}
	return Allocation{Dollars: dollars, Quantity: shares(dollars, price)}
}

// Baseline returns the flat baseline allocation used when averaging down
func (s *Sizer) Baseline(price decimal.Decimal) Allocation {
	dollars := s.weighting.BaselineDollars
	return Allocation{Dollars: dollars, Quantity: shares(dollars, price)}
}

func shares(dollars, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	return dollars.Div(price).Floor().IntPart()
}
