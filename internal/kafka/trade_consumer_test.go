package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
)

// mapStore is an in-memory portfolio.FillStore keyed by order id
type mapStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	fills     map[string]*models.Fill

	// beforeRecord runs ahead of each RecordFill, outside the lock
	beforeRecord func(*models.Fill)
}

func newMapStore() *mapStore {
	return &mapStore{positions: make(map[string]*models.Position), fills: make(map[string]*models.Fill)}
}

func (s *mapStore) RecordFill(_ context.Context, fill *models.Fill, fn func(*models.Position) (*models.Position, error)) (bool, error) {
	if hook := s.beforeRecord; hook != nil {
		s.beforeRecord = nil
		hook(fill)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fills[fill.OrderID]; ok {
		return false, nil
	}
	var current *models.Position
	if p, ok := s.positions[fill.Symbol]; ok {
		cp := *p
		current = &cp
	}
	next, err := fn(current)
	if err != nil {
		return false, err
	}
	if next == nil {
		delete(s.positions, fill.Symbol)
	} else {
		s.positions[fill.Symbol] = next
	}
	cp := *fill
	s.fills[fill.OrderID] = &cp
	return true, nil
}

func (s *mapStore) get(symbol string) *models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[symbol]
}

func (s *mapStore) fill(orderID string) *models.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills[orderID]
}

func (s *mapStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fills)
}

func newTestTradeConsumer() (*TradeConsumer, *mapStore) {
	store := newMapStore()
	return &TradeConsumer{
		updater: portfolio.NewUpdater(store, zerolog.Nop()),
		log:     zerolog.Nop(),
	}, store
}

func tradeMessage(t *testing.T, eventType, orderID, symbol, side, qty, price string) kafka.Message {
	t.Helper()
	executed := "2026-03-02T15:30:00Z"
	payload, err := json.Marshal(models.TradeEvent{
		EventType: eventType,
		Source:    "robinhood",
		Timestamp: executed,
		Data: models.TradeEventData{
			OrderID:      orderID,
			Symbol:       symbol,
			Side:         side,
			Quantity:     qty,
			AveragePrice: price,
			ExecutedAt:   &executed,
		},
	})
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestTradeConsumer_BuyBuySellSequence(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-1", "aapl", "buy", "10", "100")))
	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-2", "AAPL", "BUY", "10", "110")))

	pos := store.get("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(20), pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(105)), "got %s", pos.AvgPrice)

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-3", "AAPL", "sell", "5", "120")))
	pos = store.get("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(15), pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(105)), "sell keeps average cost")

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-4", "AAPL", "SELL", "15", "125")))
	assert.Nil(t, store.get("AAPL"))
	assert.Equal(t, 4, store.Count())
}

func TestTradeConsumer_DuplicateDeliveryAppliedOnce(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()

	msg := tradeMessage(t, EventTradeDetected, "o-1", "MSFT", "BUY", "4", "400")
	require.NoError(t, consumer.processMessage(ctx, msg))
	require.NoError(t, consumer.processMessage(ctx, msg))

	assert.Equal(t, int64(4), store.get("MSFT").Quantity)
	assert.Equal(t, 1, store.Count())
}

func TestTradeConsumer_FractionalQuantityTruncated(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-1", "SLV", "BUY", "2.9", "30")))
	assert.Equal(t, int64(2), store.get("SLV").Quantity)

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-2", "SLV", "BUY", "0.4", "31")))
	assert.Equal(t, int64(2), store.get("SLV").Quantity, "sub-share fill ignored")
}

func TestTradeConsumer_SellUntrackedRecordsFill(t *testing.T) {
	consumer, store := newTestTradeConsumer()

	require.NoError(t, consumer.processMessage(context.Background(), tradeMessage(t, EventTradeDetected, "o-9", "TSLA", "SELL", "3", "200")))
	assert.Nil(t, store.get("TSLA"))
	assert.Equal(t, 1, store.Count())
}

func TestTradeConsumer_IgnoresOtherEvents(t *testing.T) {
	consumer, store := newTestTradeConsumer()

	require.NoError(t, consumer.processMessage(context.Background(), tradeMessage(t, "ORDER_CANCELLED", "o-1", "AAPL", "BUY", "1", "1")))
	assert.Equal(t, 0, store.Count())
}

func TestTradeConsumer_InvalidEvents(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()

	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{"bad json", kafka.Message{Value: []byte("nope")}},
		{"bad side", tradeMessage(t, EventTradeDetected, "o-1", "AAPL", "HOLD", "1", "1")},
		{"bad quantity", tradeMessage(t, EventTradeDetected, "o-2", "AAPL", "BUY", "x", "1")},
		{"negative quantity", tradeMessage(t, EventTradeDetected, "o-3", "AAPL", "BUY", "-1", "1")},
		{"bad price", tradeMessage(t, EventTradeDetected, "o-4", "AAPL", "BUY", "1", "")},
		{"missing order id", tradeMessage(t, EventTradeDetected, "", "AAPL", "BUY", "1", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, consumer.processMessage(ctx, tt.msg))
		})
	}
	assert.Equal(t, 0, store.Count())
}

func TestConvertEventToFill(t *testing.T) {
	executed := "2026-03-02T15:30:00.123456"
	fill, err := convertEventToFill(models.TradeEvent{
		Source: "robinhood",
		Data: models.TradeEventData{
			OrderID: "abc", Symbol: " nvda ", Side: "Buy", Quantity: "7.000", AveragePrice: "120.5", ExecutedAt: &executed,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", fill.Symbol)
	assert.Equal(t, models.TradeTypeBuy, fill.Side)
	assert.Equal(t, int64(7), fill.Quantity)
	assert.Equal(t, 2026, fill.ExecutedAt.Year())
	assert.Equal(t, 15, fill.ExecutedAt.Hour())
}

func TestTradeConsumer_Start_shutsDownOnCancel(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	reader := newMockReader("trades", 2)
	consumer.reader = reader

	reader.msgs <- kafka.Message{Value: []byte("garbage")}
	reader.msgs <- tradeMessage(t, EventTradeDetected, "o-1", "AMD", "BUY", "5", "150")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return store.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(5), store.get("AMD").Quantity)
}

func TestTradeConsumer_SkipsFillAppliedBySession(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()
	session := portfolio.NewUpdater(store, zerolog.Nop())

	_, err := session.Apply(ctx, models.Fill{
		OrderID: "o-7", Source: models.FillSourceSession, Symbol: "AAPL",
		Side: models.TradeTypeBuy, Quantity: 3, Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-7", "AAPL", "BUY", "3", "100")))
	assert.Equal(t, int64(3), store.get("AAPL").Quantity)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, models.FillSourceSession, store.fill("o-7").Source)
}

func TestTradeConsumer_SessionFillLandingMidMessageAppliedOnce(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()
	session := portfolio.NewUpdater(store, zerolog.Nop())

	// the session records the same order after the consumer has decoded the event
	store.beforeRecord = func(f *models.Fill) {
		_, err := session.Apply(ctx, models.Fill{
			OrderID: f.OrderID, Source: models.FillSourceSession, Symbol: f.Symbol,
			Side: f.Side, Quantity: f.Quantity, Price: f.Price,
		})
		require.NoError(t, err)
	}

	require.NoError(t, consumer.processMessage(ctx, tradeMessage(t, EventTradeDetected, "o-8", "AAPL", "BUY", "3", "100")))
	assert.Equal(t, int64(3), store.get("AAPL").Quantity)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, models.FillSourceSession, store.fill("o-8").Source)
}

func TestTradeConsumer_ConcurrentSessionAndBrokerFills(t *testing.T) {
	consumer, store := newTestTradeConsumer()
	ctx := context.Background()
	session := portfolio.NewUpdater(store, zerolog.Nop())

	const orders = 20
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		orderID := fmt.Sprintf("o-%d", i)
		msg := tradeMessage(t, EventTradeDetected, orderID, "SPY", "BUY", "2", "100")
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, consumer.processMessage(ctx, msg))
		}()
		go func() {
			defer wg.Done()
			_, err := session.Apply(ctx, models.Fill{
				OrderID: orderID, Source: models.FillSourceSession, Symbol: "SPY",
				Side: models.TradeTypeBuy, Quantity: 2, Price: decimal.NewFromInt(100),
			})
			if err != nil {
				assert.ErrorIs(t, err, portfolio.ErrFillApplied)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2*orders), store.get("SPY").Quantity)
	assert.Equal(t, orders, store.Count())
}
