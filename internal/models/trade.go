package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade side constants
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// Order status constants
const (
	OrderStatusSubmitted = "submitted"
	OrderStatusFailed    = "failed"
	OrderStatusFilled    = "filled"
)

// TradeIntent is an order the user approved, before it reaches the broker
type TradeIntent struct {
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	SignalReason string          `json:"signal_reason,omitempty"`
}

// Cost returns quantity times price
func (t TradeIntent) Cost() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// TradeLog is an append-only record of every order submission attempt
type TradeLog struct {
	ID        int                 `json:"id"`
	OrderID   string              `json:"order_id"`
	Symbol    string              `json:"symbol"`
	Side      string              `json:"side"`
	Quantity  int64               `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
	Status    string              `json:"status"`
	Notes     string              `json:"notes,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// TradeHistory represents a submitted trade for the trade journal
type TradeHistory struct {
	ID          int             `json:"id"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	OrderStatus string          `json:"order_status"`
	TradeDate   time.Time       `json:"trade_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TradeEvent represents a fill reported by the broker over Kafka
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData contains the details of a single executed order
type TradeEventData struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      string  `json:"quantity"`
	AveragePrice  string  `json:"average_price"`
	TotalNotional string  `json:"total_notional"`
	Fees          string  `json:"fees"`
	ExecutedAt    *string `json:"executed_at,omitempty"`
}

// OrderEvent is published to request a market order from the broker
type OrderEvent struct {
	EventType   string    `json:"event_type"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    int64     `json:"quantity"`
	Type        string    `json:"type"`
	TimeInForce string    `json:"time_in_force"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FillSourceSession marks fills applied when a trade session submits an order
const FillSourceSession = "rsi-trader"

// Fill is a confirmed execution applied to a position
type Fill struct {
	ID         int             `json:"id"`
	OrderID    string          `json:"order_id"`
	Source     string          `json:"source"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
