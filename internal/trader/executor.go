package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/database"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
)

// OrderSubmitter sends market orders to the broker
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, symbol, side string, qty int64, reason string) (string, error)
}

// TradeStore journals submitted orders
type TradeStore interface {
	GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
	CreateTradeLog(ctx context.Context, t *models.TradeLog) error
	CreateTradeHistory(ctx context.Context, t *models.TradeHistory) error
}

// FillApplier records a fill and updates the ledger with it, once per order id
type FillApplier interface {
	Apply(ctx context.Context, fill models.Fill) (*models.Position, error)
}

// Executor carries out an approved trade
type Executor interface {
	Execute(ctx context.Context, intent models.TradeIntent) error
}

// OrderExecutor submits an order, journals it and applies it to the ledger
type OrderExecutor struct {
	orders    OrderSubmitter
	store     TradeStore
	positions FillApplier
	log       zerolog.Logger
	now       func() time.Time
}

// NewOrderExecutor creates an OrderExecutor
func NewOrderExecutor(orders OrderSubmitter, store TradeStore, positions FillApplier, log zerolog.Logger) *OrderExecutor {
	return &OrderExecutor{
		orders:    orders,
		store:     store,
		positions: positions,
		log:       log.With().Str("component", "executor").Logger(),
		now:       time.Now,
	}
}

// Execute submits intent as a market order. A sell of a symbol the ledger does
// not hold is rejected before anything is sent. Once the broker accepts the
// order, journal and ledger failures are logged and do not fail the trade.
func (e *OrderExecutor) Execute(ctx context.Context, intent models.TradeIntent) error {
	if intent.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %d for %s", intent.Quantity, intent.Symbol)
	}

	if intent.Side == models.TradeTypeSell {
		if _, err := e.store.GetPositionBySymbol(ctx, intent.Symbol); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("%w: %s", portfolio.ErrUntrackedSell, intent.Symbol)
			}
			return fmt.Errorf("failed to check position %s: %w", intent.Symbol, err)
		}
	}

	orderID, err := e.orders.SubmitMarketOrder(ctx, intent.Symbol, intent.Side, intent.Quantity, intent.SignalReason)
	if err != nil {
		e.journal(ctx, intent, "", models.OrderStatusFailed, err.Error())
		return err
	}
	e.journal(ctx, intent, orderID, models.OrderStatusSubmitted, intent.SignalReason)

	fill := models.Fill{
		OrderID:    orderID,
		Source:     models.FillSourceSession,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
		ExecutedAt: e.now(),
	}
	_, err = e.positions.Apply(ctx, fill)
	switch {
	case errors.Is(err, portfolio.ErrFillApplied):
		e.log.Info().Str("symbol", intent.Symbol).Str("order_id", orderID).Msg("fill already applied from broker event")
	case err != nil:
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Str("order_id", orderID).Msg("order submitted but ledger not updated, run sync")
	}
	return nil
}

func (e *OrderExecutor) journal(ctx context.Context, intent models.TradeIntent, orderID, status, notes string) {
	now := e.now()
	entry := &models.TradeLog{
		OrderID:   orderID,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Quantity:  intent.Quantity,
		Price:     decimal.NewNullDecimal(intent.Price),
		Status:    status,
		Notes:     notes,
		Timestamp: now,
	}
	if err := e.store.CreateTradeLog(ctx, entry); err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("failed to write trade log")
	}
	if status != models.OrderStatusSubmitted {
		return
	}

	history := &models.TradeHistory{
		OrderID:     orderID,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Quantity:    intent.Quantity,
		Price:       intent.Price,
		OrderStatus: status,
		TradeDate:   now,
	}
	if err := e.store.CreateTradeHistory(ctx, history); err != nil {
		e.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("failed to write trade history")
	}
}
