package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RSISnapshot is the RSI and closing price of a symbol as of a snapshot date.
// There is at most one row per (symbol, snapshot_date); recomputing overwrites it.
type RSISnapshot struct {
	ID           int                 `json:"id"`
	SnapshotDate time.Time           `json:"snapshot_date"`
	Symbol       string              `json:"symbol"`
	RSI          decimal.NullDecimal `json:"rsi"`
	Price        decimal.NullDecimal `json:"price"`
	CreatedAt    time.Time           `json:"created_at"`
}

// RSIValue returns the snapshot RSI as a float and whether it is set
func (s *RSISnapshot) RSIValue() (float64, bool) {
	if !s.RSI.Valid {
		return 0, false
	}
	return s.RSI.Decimal.InexactFloat64(), true
}

// NewRSISnapshot builds a snapshot from a computed RSI and close
func NewRSISnapshot(date time.Time, symbol string, rsi float64, price float64) *RSISnapshot {
	return &RSISnapshot{
		SnapshotDate: date,
		Symbol:       symbol,
		RSI:          decimal.NewNullDecimal(decimal.NewFromFloat(rsi).Round(4)),
		Price:        decimal.NewNullDecimal(decimal.NewFromFloat(price)),
	}
}
