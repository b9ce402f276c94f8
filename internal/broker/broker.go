// Package broker exposes the brokerage account. Account state comes from the
// snapshot cached by the positions consumer; orders are published to Kafka.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// ErrStaleAccount is returned when the cached account snapshot is older than the allowed age
var ErrStaleAccount = errors.New("account snapshot is stale")

// AccountReader returns the latest cached account snapshot
type AccountReader interface {
	Account(ctx context.Context) (*models.AccountSnapshot, error)
}

// OrderPublisher sends market orders to the broker
type OrderPublisher interface {
	PublishMarketOrder(ctx context.Context, symbol, side string, qty int64, reason string) (string, error)
}

// MarketClock reports whether the exchange is in its regular session
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// Broker is the account facade used by trade sessions and the reconciler
type Broker struct {
	accounts AccountReader
	orders   OrderPublisher
	clock    MarketClock
	maxAge   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a Broker. A zero maxAge accepts snapshots of any age.
func New(accounts AccountReader, orders OrderPublisher, clock MarketClock, maxAge time.Duration, log zerolog.Logger) *Broker {
	return &Broker{
		accounts: accounts,
		orders:   orders,
		clock:    clock,
		maxAge:   maxAge,
		now:      time.Now,
		log:      log.With().Str("component", "broker").Logger(),
	}
}

func (b *Broker) account(ctx context.Context) (*models.AccountSnapshot, error) {
	snap, err := b.accounts.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker account: %w", err)
	}
	if b.maxAge > 0 && b.now().Sub(snap.ReceivedAt) > b.maxAge {
		return nil, fmt.Errorf("%w: received %s", ErrStaleAccount, snap.ReceivedAt.Format(time.RFC3339))
	}
	return snap, nil
}

// Cash returns the settled cash balance
func (b *Broker) Cash(ctx context.Context) (decimal.Decimal, error) {
	snap, err := b.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Cash, nil
}

// ExternalPositions returns the positions held at the broker
func (b *Broker) ExternalPositions(ctx context.Context) ([]models.ExternalPosition, error) {
	snap, err := b.account(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Positions, nil
}

// SubmitMarketOrder sends a day market order and returns its order id
func (b *Broker) SubmitMarketOrder(ctx context.Context, symbol, side string, qty int64, reason string) (string, error) {
	id, err := b.orders.PublishMarketOrder(ctx, symbol, side, qty, reason)
	if err != nil {
		b.log.Error().Err(err).Str("symbol", symbol).Str("side", side).Int64("qty", qty).Msg("order submission failed")
		return "", fmt.Errorf("failed to submit %s %d %s: %w", side, qty, symbol, err)
	}
	b.log.Info().Str("order_id", id).Str("symbol", symbol).Str("side", side).Int64("qty", qty).Msg("order submitted")
	return id, nil
}

// IsMarketOpen reports whether the regular session is open now
func (b *Broker) IsMarketOpen() bool {
	return b.clock.IsOpen(b.now())
}
