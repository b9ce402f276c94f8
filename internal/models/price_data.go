package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents one daily OHLCV bar for a symbol.
// Bars are keyed by (symbol, trade_date) and never rewritten once stored.
type PriceBar struct {
	ID        int             `json:"id"`
	Symbol    string          `json:"symbol"`
	TradeDate time.Time       `json:"trade_date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
}

// ClosePoint is a single closing price used as RSI input
type ClosePoint struct {
	Symbol    string
	TradeDate time.Time
	Close     float64
}
