package trader

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/rsi-trader/internal/config"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
	"github.com/trogers1052/rsi-trader/internal/session"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

type harness struct {
	store   *memStore
	orders  *fakeOrders
	account *fakeAccount
	decider *session.Scripted
	out     *bytes.Buffer
	deps    Deps
}

func newHarness(quotes fakeQuotes, cash int64, decider *session.Scripted) *harness {
	strategy := config.DefaultStrategy()
	h := &harness{
		store:   newMemStore(),
		orders:  &fakeOrders{},
		account: &fakeAccount{cash: decimal.NewFromInt(cash)},
		decider: decider,
		out:     &bytes.Buffer{},
	}
	exec := NewOrderExecutor(h.orders, h.store, portfolio.NewUpdater(h.store, zerolog.Nop()), zerolog.Nop())
	h.deps = Deps{
		Classifier: signal.NewClassifier(strategy.Thresholds()),
		Sizer:      strategy.Sizer(),
		Quotes:     quotes,
		Account:    h.account,
		Executor:   exec,
		Decider:    decider,
		Out:        h.out,
		Log:        zerolog.Nop(),
	}
	return h
}

func (h *harness) entry(t *testing.T) *EntrySession {
	t.Helper()
	return NewEntrySession(h.deps, NewLoader(h.store, config.SourceModeDB, t.TempDir(), zerolog.Nop()), config.OrderNone)
}

func TestEntrySession_BuysInOrderWithinBudget(t *testing.T) {
	h := newHarness(fakeQuotes{"AAA": 50, "BBB": 100, "DDD": 300}, 2500, session.NewScripted(true, session.Approve, session.Approve))
	h.store.snapshots = []*models.RSISnapshot{
		snapshot("BBB", 24, 100),
		snapshot("CCC", 50, 20),
		snapshot("AAA", 15, 50),
		snapshot("DDD", 85, 300),
	}

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "db", report.Source)
	assert.Equal(t, 2, report.Oversold)
	assert.Equal(t, 1, report.Overbought)
	assert.Equal(t, 1, report.Buys.Executed)
	assert.Equal(t, 1, report.Buys.Skipped, "BBB needs $1,500 with $500 left")
	assert.Equal(t, 1, report.Shorts.Skipped, "overbought readings get no allocation")

	assert.Equal(t, []string{"BUY 40 AAA"}, h.orders.placed)
	require.Contains(t, h.store.positions, "AAA")
	assert.Equal(t, int64(40), h.store.positions["AAA"].Quantity)
	require.Len(t, h.store.logs, 1)
	require.Len(t, h.store.history, 1)
	require.Len(t, h.store.fills, 1)

	out := h.out.String()
	assert.Contains(t, out, "Available cash: $2,500.00")
	assert.Contains(t, out, "Market is closed")
	assert.Contains(t, out, "Suggested allocation: $2,000.00 -> 40 shares at $50.00 (Total: $2,000.00)")
	assert.Contains(t, out, "Not enough cash to buy 15 shares of BBB (need $1,500.00, have $500.00).")
}

func TestEntrySession_GateDeclined(t *testing.T) {
	h := newHarness(fakeQuotes{"AAA": 50}, 10000, session.NewScripted(false, session.Approve))
	h.store.snapshots = []*models.RSISnapshot{snapshot("AAA", 15, 50)}

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, h.orders.placed)
	assert.Contains(t, h.out.String(), "Aborting all trades.")
}

func TestEntrySession_AbortSkipsRemainingBuys(t *testing.T) {
	h := newHarness(fakeQuotes{"AAA": 50, "BBB": 10}, 100000, session.NewScripted(true, session.Abort, session.Approve))
	h.store.snapshots = []*models.RSISnapshot{snapshot("AAA", 15, 50), snapshot("BBB", 18, 10)}

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Buys.Aborted)
	assert.Empty(t, h.orders.placed)
}

func TestEntrySession_UnknownCashDeclinesBuys(t *testing.T) {
	h := newHarness(fakeQuotes{"AAA": 50}, 0, session.NewScripted(true, session.Approve))
	h.account.cashErr = errors.New("no snapshot")
	h.store.snapshots = []*models.RSISnapshot{snapshot("AAA", 15, 50)}

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Buys.Skipped)
	assert.Empty(t, h.orders.placed)
	assert.Empty(t, h.decider.Prompts())
}

func TestEntrySession_NoPriceSkips(t *testing.T) {
	h := newHarness(fakeQuotes{}, 10000, session.NewScripted(true, session.Approve))
	h.store.snapshots = []*models.RSISnapshot{snapshot("AAA", 15, 50)}

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Buys.Skipped)
	assert.Contains(t, h.out.String(), "No price available for AAA.")
}

func TestEntrySession_NoData(t *testing.T) {
	h := newHarness(fakeQuotes{}, 0, session.NewScripted(true))

	report, err := h.entry(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "csv", report.Source)
	assert.Contains(t, h.out.String(), "No snapshot data found")
}

func TestExitSession_SellAndAverageDown(t *testing.T) {
	h := newHarness(nil, 5000, session.NewScripted(true, session.Approve, session.AverageDown))
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	h.store.hold("XYZ", 10, 100, now.AddDate(0, 0, -40))
	h.store.hold("ABC", 10, 100, now.AddDate(0, 0, -40))
	h.store.hold("LOS", 5, 100, now.AddDate(0, 0, -5))
	h.store.hold("NOS", 5, 100, now.AddDate(0, 0, -5))
	h.store.snapshots = []*models.RSISnapshot{
		snapshot("XYZ", 75, 110),
		snapshot("ABC", 20, 80),
		snapshot("LOS", 25, 85),
	}

	s := NewExitSession(h.deps, h.store)
	s.now = func() time.Time { return now }

	holdings, err := s.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 3, "NOS has no snapshot")
	assert.Equal(t, "XYZ", holdings[0].Position.Symbol)
	assert.Equal(t, 40, holdings[0].DaysHeld)
	assert.Equal(t, "RSI ≥ 70; Held > 30d", holdings[0].ExitReason)
	assert.True(t, holdings[0].UnrealizedPL.Equal(decimal.NewFromInt(100)))

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Exits)
	assert.Equal(t, 2, report.AverageDowns)
	assert.Equal(t, 2, report.Actions.Executed)

	assert.Equal(t, []string{"SELL 10 XYZ", "BUY 12 ABC"}, h.orders.placed)
	assert.NotContains(t, h.store.positions, "XYZ")
	require.Contains(t, h.store.positions, "ABC")
	abc := h.store.positions["ABC"]
	assert.Equal(t, int64(22), abc.Quantity)
	assert.True(t, abc.AvgPrice.Equal(decimal.NewFromInt(1960).Div(decimal.NewFromInt(22))))

	prompts := h.decider.Prompts()
	require.Len(t, prompts, 2)
	assert.False(t, prompts[0].Offers(session.AverageDown))
	assert.True(t, prompts[1].Offers(session.AverageDown))
}

func TestExitSession_AverageDownNeedsCash(t *testing.T) {
	h := newHarness(nil, 100, session.NewScripted(true, session.AverageDown))
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	h.store.hold("ABC", 10, 100, now.AddDate(0, 0, -40))
	h.store.snapshots = []*models.RSISnapshot{snapshot("ABC", 20, 80)}

	s := NewExitSession(h.deps, h.store)
	s.now = func() time.Time { return now }

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions.Skipped)
	assert.Empty(t, h.orders.placed)
	assert.Contains(t, h.out.String(), "Not enough cash to average down ABC")
}

func TestExitSession_NothingToDo(t *testing.T) {
	h := newHarness(nil, 0, session.NewScripted(true))
	now := time.Now()
	h.store.hold("OK", 1, 100, now)
	h.store.snapshots = []*models.RSISnapshot{snapshot("OK", 50, 101)}

	report, err := NewExitSession(h.deps, h.store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Holdings)
	assert.Contains(t, h.out.String(), "No exit or average down candidates today.")
}
