package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents a current stock holding in the local ledger.
// A stored position always has Quantity > 0.
type Position struct {
	ID        int             `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	EntryDate time.Time       `json:"entry_date"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MarketValue returns quantity times average cost
func (p *Position) MarketValue() decimal.Decimal {
	return p.AvgPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// ExternalPosition is a position as reported by the broker of record
type ExternalPosition struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// AccountSnapshot is the latest broker view of the account
type AccountSnapshot struct {
	Source      string             `json:"source"`
	Cash        decimal.Decimal    `json:"cash"`
	BuyingPower decimal.Decimal    `json:"buying_power"`
	Positions   []ExternalPosition `json:"positions"`
	ReceivedAt  time.Time          `json:"received_at"`
}

// PositionsEvent represents a Kafka message with a position snapshot from the broker
type PositionsEvent struct {
	EventType string             `json:"event_type"`
	Source    string             `json:"source"`
	Timestamp string             `json:"timestamp"`
	Data      PositionsEventData `json:"data"`
}

// PositionsEventData contains the positions and account balance
type PositionsEventData struct {
	Positions   []PositionData `json:"positions"`
	BuyingPower string         `json:"buying_power"`
	Cash        string         `json:"cash"`
	TotalEquity string         `json:"total_equity"`
}

// PositionData represents a single position from the broker
type PositionData struct {
	Symbol          string `json:"symbol"`
	Quantity        string `json:"quantity"`
	AverageBuyPrice string `json:"average_buy_price"`
	Equity          string `json:"equity"`
	PercentChange   string `json:"percent_change"`
	EquityChange    string `json:"equity_change"`
	UpdatedAt       string `json:"updated_at"`
}
