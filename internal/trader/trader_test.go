package trader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/rsi-trader/internal/config"
	"github.com/trogers1052/rsi-trader/internal/export"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

func symbols(readings []Reading) []string {
	out := make([]string, len(readings))
	for i, r := range readings {
		out[i] = r.Symbol
	}
	return out
}

func TestSelect(t *testing.T) {
	classifier := signal.NewClassifier(config.DefaultStrategy().Thresholds())
	readings := []Reading{
		{Symbol: "A", RSI: 25},
		{Symbol: "B", RSI: 90},
		{Symbol: "C", RSI: 10},
		{Symbol: "D", RSI: 50},
		{Symbol: "E", RSI: 82},
		{Symbol: "F", RSI: 26},
		{Symbol: "G", RSI: 95},
	}

	tests := []struct {
		order string
		want  []string
	}{
		{config.OrderNone, []string{"B", "E", "G"}},
		{config.OrderAsc, []string{"E", "B", "G"}},
		{config.OrderDesc, []string{"G", "B", "E"}},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			set := Select(readings, classifier, tt.order)
			assert.Equal(t, []string{"C", "A"}, symbols(set.Oversold), "26 is not below primary")
			assert.Equal(t, tt.want, symbols(set.Overbought))
		})
	}
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	_, err := export.WriteScan(dir, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), []export.RSIRow{
		{Symbol: "AAA", RSI: 12, Close: 5},
		{Symbol: "ZZZ", RSI: 88, Close: 9},
	}, 10)
	require.NoError(t, err)

	store := newMemStore()
	store.snapshots = []*models.RSISnapshot{snapshot("DB1", 20, 1), {Symbol: "NULL"}}

	t.Run("db", func(t *testing.T) {
		readings, source, err := NewLoader(store, config.SourceModeDB, dir, zerolog.Nop()).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "db", source)
		assert.Equal(t, []string{"DB1"}, symbols(readings))
	})

	t.Run("db empty falls back to csv", func(t *testing.T) {
		readings, source, err := NewLoader(newMemStore(), config.SourceModeDB, dir, zerolog.Nop()).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "csv", source)
		assert.Equal(t, []string{"AAA", "ZZZ"}, symbols(readings), "lowest and highest share rows, deduplicated")
		assert.True(t, readings[0].Close.Equal(decimal.NewFromInt(5)))
	})

	t.Run("csv mode", func(t *testing.T) {
		_, source, err := NewLoader(store, config.SourceModeCSV, dir, zerolog.Nop()).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "csv", source)
	})
}

func series(symbol string, start time.Time, closes ...float64) []models.ClosePoint {
	out := make([]models.ClosePoint, len(closes))
	for i, c := range closes {
		out[i] = models.ClosePoint{Symbol: symbol, TradeDate: start.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestScanner(t *testing.T) {
	today := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -16)

	store := newMemStore()
	store.universe = []string{"UP", "DOWN", "SHORT"}
	rising := make([]float64, 17)
	falling := make([]float64, 17)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}
	store.closes["UP"] = series("UP", start, rising...)
	store.closes["DOWN"] = series("DOWN", start, falling...)
	store.closes["SHORT"] = series("SHORT", start, 1, 2, 3)

	dir := t.TempDir()
	result, err := NewScanner(store, 14, 10, dir, zerolog.Nop()).Scan(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Universe)
	assert.Equal(t, 1, result.Insufficient)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "DOWN", result.Rows[0].Symbol)
	assert.Equal(t, 0.0, result.Rows[0].RSI)
	assert.Equal(t, "UP", result.Rows[1].Symbol)
	assert.Equal(t, 100.0, result.Rows[1].RSI)
	assert.Equal(t, 116.0, result.Rows[1].Close)

	assert.Equal(t, 2, result.Stored)
	require.Len(t, store.upserted, 2)
	assert.Equal(t, today, store.upserted[0].SnapshotDate)

	_, err = os.Stat(result.Files.Snapshot)
	assert.NoError(t, err)
	assert.Equal(t, []float64{0, 100}, result.RSIValues())
}

func TestScanner_EmptyUniverse(t *testing.T) {
	_, err := NewScanner(newMemStore(), 14, 10, t.TempDir(), zerolog.Nop()).Scan(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestEnsureUniverse(t *testing.T) {
	path := t.TempDir() + "/sp500.csv"
	require.NoError(t, os.WriteFile(path, []byte("Symbol,Security,GICS Sector\nAAPL,Apple,Tech\nmsft,Microsoft,Tech\n"), 0o644))

	store := newMemStore()
	require.NoError(t, EnsureUniverse(context.Background(), store, path, zerolog.Nop()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, store.universe)

	require.NoError(t, EnsureUniverse(context.Background(), store, path, zerolog.Nop()))
	assert.Len(t, store.universe, 2, "existing universe is kept")
}

func TestOrderExecutor(t *testing.T) {
	ctx := context.Background()
	buy := models.TradeIntent{Symbol: "AAPL", Side: models.TradeTypeBuy, Quantity: 5, Price: decimal.NewFromInt(100), SignalReason: "RSI 15.00"}

	t.Run("buy journals and updates ledger", func(t *testing.T) {
		store, orders := newMemStore(), &fakeOrders{}
		exec := NewOrderExecutor(orders, store, portfolio.NewUpdater(store, zerolog.Nop()), zerolog.Nop())

		require.NoError(t, exec.Execute(ctx, buy))
		assert.Equal(t, []string{"BUY 5 AAPL"}, orders.placed)
		require.Len(t, store.logs, 1)
		assert.Equal(t, models.OrderStatusSubmitted, store.logs[0].Status)
		assert.Equal(t, "order-1", store.logs[0].OrderID)
		require.Len(t, store.history, 1)
		require.Len(t, store.fills, 1)
		assert.Equal(t, models.FillSourceSession, store.fills[0].Source)
		assert.Equal(t, int64(5), store.positions["AAPL"].Quantity)
	})

	t.Run("sell of untracked symbol is rejected before submission", func(t *testing.T) {
		store, orders := newMemStore(), &fakeOrders{}
		exec := NewOrderExecutor(orders, store, portfolio.NewUpdater(store, zerolog.Nop()), zerolog.Nop())

		err := exec.Execute(ctx, models.TradeIntent{Symbol: "TSLA", Side: models.TradeTypeSell, Quantity: 1, Price: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, portfolio.ErrUntrackedSell)
		assert.Empty(t, orders.placed)
		assert.Empty(t, store.logs)
	})

	t.Run("broker failure is journaled", func(t *testing.T) {
		store := newMemStore()
		exec := NewOrderExecutor(&fakeOrders{err: errors.New("rejected")}, store, portfolio.NewUpdater(store, zerolog.Nop()), zerolog.Nop())

		assert.Error(t, exec.Execute(ctx, buy))
		require.Len(t, store.logs, 1)
		assert.Equal(t, models.OrderStatusFailed, store.logs[0].Status)
		assert.Equal(t, "rejected", store.logs[0].Notes)
		assert.Empty(t, store.history)
		assert.Empty(t, store.positions)
	})

	t.Run("ledger failure after submission does not fail the trade", func(t *testing.T) {
		store, orders := newMemStore(), &fakeOrders{}
		exec := NewOrderExecutor(orders, store, failingApplier{}, zerolog.Nop())

		assert.NoError(t, exec.Execute(ctx, buy))
		assert.Len(t, orders.placed, 1)
		assert.Empty(t, store.fills)
	})

	t.Run("broker event applied before the session fill is not doubled", func(t *testing.T) {
		store, orders := newMemStore(), &fakeOrders{}
		updater := portfolio.NewUpdater(store, zerolog.Nop())
		_, err := updater.Apply(ctx, models.Fill{
			OrderID: "order-1", Source: "robinhood", Symbol: "AAPL",
			Side: models.TradeTypeBuy, Quantity: 5, Price: decimal.NewFromInt(99),
		})
		require.NoError(t, err)

		exec := NewOrderExecutor(orders, store, updater, zerolog.Nop())
		require.NoError(t, exec.Execute(ctx, buy))
		assert.Len(t, store.logs, 1)
		assert.Equal(t, int64(5), store.positions["AAPL"].Quantity)
		assert.True(t, decimal.NewFromInt(99).Equal(store.positions["AAPL"].AvgPrice), "broker price is kept")
		require.Len(t, store.fills, 1)
		assert.Equal(t, "robinhood", store.fills[0].Source)
	})

	t.Run("zero quantity", func(t *testing.T) {
		exec := NewOrderExecutor(&fakeOrders{}, newMemStore(), failingApplier{}, zerolog.Nop())
		assert.Error(t, exec.Execute(ctx, models.TradeIntent{Symbol: "X", Side: models.TradeTypeBuy}))
	})
}

type staticSource []models.ExternalPosition

func (s staticSource) ExternalPositions(context.Context) ([]models.ExternalPosition, error) {
	return s, nil
}

type brokenSource struct{}

func (brokenSource) ExternalPositions(context.Context) ([]models.ExternalPosition, error) {
	return nil, errors.New("no account snapshot cached")
}

func TestSyncer(t *testing.T) {
	store := newMemStore()
	entry := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store.hold("OLD", 1, 10, entry)
	store.hold("AAPL", 5, 100, entry)

	source := staticSource{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: decimal.NewFromInt(120)},
		{Symbol: "MSFT", Quantity: 2, AvgPrice: decimal.NewFromInt(400)},
	}
	var out bytes.Buffer
	syncer := NewSyncer(portfolio.NewReconciler(store, source, zerolog.Nop()), store, &out)

	report, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)
	assert.Len(t, store.positions, 2)

	text := out.String()
	assert.Contains(t, text, "3 of 3 changes applied (1 updated, 1 inserted, 1 removed)")
	assert.Contains(t, text, "Total Portfolio Value: $2,000.00")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("AAPL")), bytes.Index(out.Bytes(), []byte("MSFT")), "largest position first")

	report, err = syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Plan.Changes(), "second sync is a no-op")
}

func TestSyncer_BrokerUnavailable(t *testing.T) {
	store := newMemStore()
	store.hold("AAPL", 5, 100, time.Now())
	syncer := NewSyncer(portfolio.NewReconciler(store, brokenSource{}, zerolog.Nop()), store, &bytes.Buffer{})

	_, err := syncer.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, store.positions, "AAPL")
}

func TestMoney(t *testing.T) {
	tests := map[string]decimal.Decimal{
		"$0.00":          decimal.Zero,
		"$999.50":        decimal.RequireFromString("999.5"),
		"$1,000.00":      decimal.NewFromInt(1000),
		"$12,345,678.91": decimal.RequireFromString("12345678.906"),
		"-$1,500.25":     decimal.RequireFromString("-1500.25"),
	}
	for want, in := range tests {
		assert.Equal(t, want, money(in))
	}
}
