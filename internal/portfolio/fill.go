package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/rsi-trader/internal/models"
)

var (
	// ErrUntrackedSell is returned when a sell names a symbol the ledger does not hold
	ErrUntrackedSell = errors.New("cannot sell untracked symbol")
	// ErrInvalidFill is returned for fills with a bad side, quantity or price
	ErrInvalidFill = errors.New("invalid fill")
	// ErrFillApplied is returned when a fill's order id was already applied
	ErrFillApplied = errors.New("fill already applied")
)

// ApplyFill returns the position after fill is applied to current (nil when not held).
// A nil result means the position is closed and must be deleted.
func ApplyFill(current *models.Position, fill models.Fill) (*models.Position, error) {
	if fill.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidFill, fill.Quantity)
	}

	switch fill.Side {
	case models.TradeTypeBuy:
		if fill.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price %s", ErrInvalidFill, fill.Price)
		}
		if current == nil {
			entry := fill.ExecutedAt
			if entry.IsZero() {
				entry = time.Now()
			}
			return &models.Position{
				Symbol:    fill.Symbol,
				Quantity:  fill.Quantity,
				AvgPrice:  fill.Price,
				EntryDate: entry,
			}, nil
		}

		next := *current
		next.Quantity = current.Quantity + fill.Quantity
		cost := current.AvgPrice.Mul(decimal.NewFromInt(current.Quantity)).
			Add(fill.Price.Mul(decimal.NewFromInt(fill.Quantity)))
		next.AvgPrice = cost.Div(decimal.NewFromInt(next.Quantity))
		return &next, nil

	case models.TradeTypeSell:
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrUntrackedSell, fill.Symbol)
		}
		remaining := current.Quantity - fill.Quantity
		if remaining <= 0 {
			return nil, nil
		}
		next := *current
		next.Quantity = remaining
		return &next, nil

	default:
		return nil, fmt.Errorf("%w: side %q", ErrInvalidFill, fill.Side)
	}
}

// FillStore records fills and applies them to positions. RecordFill claims the
// fill's order id and runs fn against the position under a per-symbol lock in
// one transaction; fn's result is stored and nil deletes. It returns false
// without calling fn when the order id was already recorded.
type FillStore interface {
	RecordFill(ctx context.Context, fill *models.Fill, fn func(*models.Position) (*models.Position, error)) (bool, error)
}

// Updater applies fills to the ledger once per order id, atomically per symbol
type Updater struct {
	store FillStore
	log   zerolog.Logger
}

// NewUpdater creates an Updater
func NewUpdater(store FillStore, log zerolog.Logger) *Updater {
	return &Updater{store: store, log: log.With().Str("component", "position_updater").Logger()}
}

// Apply applies fill and returns the resulting position, or nil if it was closed.
// It returns ErrFillApplied when the order id was already applied. A sell of an
// untracked symbol is recorded without touching the ledger and reported as
// ErrUntrackedSell so redelivery skips it.
func (u *Updater) Apply(ctx context.Context, fill models.Fill) (*models.Position, error) {
	var result *models.Position
	untracked := false
	applied, err := u.store.RecordFill(ctx, &fill, func(current *models.Position) (*models.Position, error) {
		next, err := ApplyFill(current, fill)
		if errors.Is(err, ErrUntrackedSell) {
			untracked = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		result = next
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s fill for %s: %w", fill.Side, fill.Symbol, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: order %s", ErrFillApplied, fill.OrderID)
	}
	if untracked {
		return nil, fmt.Errorf("%w: %s", ErrUntrackedSell, fill.Symbol)
	}

	if result == nil {
		u.log.Info().Str("symbol", fill.Symbol).Int64("qty", fill.Quantity).Msg("position closed")
	} else {
		u.log.Info().Str("symbol", fill.Symbol).Str("side", fill.Side).
			Int64("fill_qty", fill.Quantity).Str("fill_price", fill.Price.StringFixed(4)).
			Int64("qty", result.Quantity).Str("avg_price", result.AvgPrice.StringFixed(4)).
			Msg("position updated")
	}
	return result, nil
}
