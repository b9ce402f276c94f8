package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// EventPositionsSnapshot is the event type carrying a full broker account snapshot
const EventPositionsSnapshot = "POSITIONS_SNAPSHOT"

// AccountStore keeps the latest broker account snapshot
type AccountStore interface {
	SaveAccount(ctx context.Context, snap *models.AccountSnapshot) error
}

// PositionsConsumer caches broker position snapshots. The cached snapshot is
// what the reconciler treats as the external source of truth.
type PositionsConsumer struct {
	reader messageReader
	store  AccountStore
	log    zerolog.Logger
}

// NewPositionsConsumer creates a consumer for position snapshots
func NewPositionsConsumer(brokers []string, topic, groupID string, store AccountStore, log zerolog.Logger) *PositionsConsumer {
	return &PositionsConsumer{
		reader: newReader(brokers, topic, groupID),
		store:  store,
		log:    log.With().Str("component", "positions_consumer").Logger(),
	}
}

// Start consumes until ctx is cancelled
func (c *PositionsConsumer) Start(ctx context.Context) error {
	return consume(ctx, c.reader, c.log, c.processMessage)
}

func (c *PositionsConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PositionsEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal positions event: %w", err)
	}

	if event.EventType != EventPositionsSnapshot {
		c.log.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	snap := c.toSnapshot(event)
	if err := c.store.SaveAccount(ctx, snap); err != nil {
		return fmt.Errorf("failed to save account snapshot: %w", err)
	}

	c.log.Info().
		Str("source", snap.Source).
		Int("positions", len(snap.Positions)).
		Str("cash", snap.Cash.StringFixed(2)).
		Msg("cached account snapshot")
	return nil
}

// toSnapshot converts the wire event. Quantities are truncated to whole shares;
// positions below one share are dropped. A later duplicate symbol replaces an earlier one.
func (c *PositionsConsumer) toSnapshot(event models.PositionsEvent) *models.AccountSnapshot {
	received := time.Now()
	if t, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		received = t
	}

	snap := &models.AccountSnapshot{
		Source:      event.Source,
		Cash:        parseDecimal(event.Data.Cash),
		BuyingPower: parseDecimal(event.Data.BuyingPower),
		ReceivedAt:  received,
	}

	var order []string
	latest := make(map[string]models.ExternalPosition)
	for _, p := range event.Data.Positions {
		symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if symbol == "" {
			continue
		}
		qty, err := decimal.NewFromString(p.Quantity)
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("quantity", p.Quantity).Msg("skipping position with invalid quantity")
			continue
		}
		whole := qty.IntPart()
		if !qty.Equal(decimal.NewFromInt(whole)) {
			c.log.Debug().Str("symbol", symbol).Str("quantity", p.Quantity).Msg("truncating fractional shares")
		}

		if _, seen := latest[symbol]; !seen {
			order = append(order, symbol)
		}
		latest[symbol] = models.ExternalPosition{
			Symbol:   symbol,
			Quantity: whole,
			AvgPrice: parseDecimal(p.AverageBuyPrice),
		}
	}

	for _, symbol := range order {
		if pos := latest[symbol]; pos.Quantity > 0 {
			snap.Positions = append(snap.Positions, pos)
		}
	}
	return snap
}

// Close closes the consumer
func (c *PositionsConsumer) Close() error {
	return c.reader.Close()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
