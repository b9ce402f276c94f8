package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
)

// EventTradeDetected is the event type carrying a broker execution
const EventTradeDetected = "TRADE_DETECTED"

// FillApplier records a fill and updates the local ledger with it, once per order id
type FillApplier interface {
	Apply(ctx context.Context, fill models.Fill) (*models.Position, error)
}

// TradeConsumer applies broker executions to the local position ledger
type TradeConsumer struct {
	reader  messageReader
	updater FillApplier
	log     zerolog.Logger
}

// NewTradeConsumer creates a consumer for executed trades
func NewTradeConsumer(brokers []string, topic, groupID string, updater FillApplier, log zerolog.Logger) *TradeConsumer {
	return &TradeConsumer{
		reader:  newReader(brokers, topic, groupID),
		updater: updater,
		log:     log.With().Str("component", "trade_consumer").Logger(),
	}
}

// Start consumes until ctx is cancelled
func (c *TradeConsumer) Start(ctx context.Context) error {
	return consume(ctx, c.reader, c.log, c.processMessage)
}

func (c *TradeConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	if event.EventType != EventTradeDetected {
		c.log.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	fill, err := convertEventToFill(event)
	if err != nil {
		return fmt.Errorf("failed to convert trade event: %w", err)
	}
	if fill.Quantity == 0 {
		c.log.Warn().Str("order_id", fill.OrderID).Str("quantity", event.Data.Quantity).Msg("ignoring fill below one whole share")
		return nil
	}

	// orders placed from a trade session share the order id and may already be applied
	_, err = c.updater.Apply(ctx, *fill)
	switch {
	case errors.Is(err, portfolio.ErrFillApplied):
		c.log.Debug().Str("order_id", fill.OrderID).Str("source", fill.Source).Msg("fill already applied, skipping")
		return nil
	case errors.Is(err, portfolio.ErrUntrackedSell):
		// the next sync will reconcile this symbol against the broker
		c.log.Warn().Str("symbol", fill.Symbol).Str("order_id", fill.OrderID).Msg("sell fill for untracked symbol")
		return nil
	case err != nil:
		return err
	}

	c.log.Info().
		Str("order_id", fill.OrderID).
		Str("symbol", fill.Symbol).
		Str("side", fill.Side).
		Int64("qty", fill.Quantity).
		Str("price", fill.Price.StringFixed(4)).
		Msg("applied fill")
	return nil
}

// convertEventToFill parses the wire event. Quantities are truncated to whole shares.
func convertEventToFill(event models.TradeEvent) (*models.Fill, error) {
	data := event.Data
	if data.OrderID == "" {
		return nil, errors.New("missing order_id")
	}

	qty, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %w", err)
	}
	if qty.IsNegative() {
		return nil, fmt.Errorf("invalid quantity: %s", data.Quantity)
	}

	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return nil, fmt.Errorf("invalid average_price: %w", err)
	}

	side := strings.ToUpper(strings.TrimSpace(data.Side))
	if side != models.TradeTypeBuy && side != models.TradeTypeSell {
		return nil, fmt.Errorf("invalid side: %s", data.Side)
	}

	executedAt := time.Now()
	if data.ExecutedAt != nil && *data.ExecutedAt != "" {
		if t, err := time.Parse(time.RFC3339, *data.ExecutedAt); err == nil {
			executedAt = t
		} else if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999", *data.ExecutedAt, time.UTC); err == nil {
			executedAt = t
		}
	}

	return &models.Fill{
		OrderID:    data.OrderID,
		Source:     event.Source,
		Symbol:     strings.ToUpper(strings.TrimSpace(data.Symbol)),
		Side:       side,
		Quantity:   qty.IntPart(),
		Price:      price,
		ExecutedAt: executedAt,
	}, nil
}

// Close closes the consumer
func (c *TradeConsumer) Close() error {
	return c.reader.Close()
}
