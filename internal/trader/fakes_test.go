package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/database"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// memStore is an in-memory ledger covering every store interface in this package
type memStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	snapshots []*models.RSISnapshot
	universe  []string
	closes    map[string][]models.ClosePoint
	logs      []*models.TradeLog
	history   []*models.TradeHistory
	fills     []*models.Fill
	upserted  []*models.RSISnapshot
}

func newMemStore() *memStore {
	return &memStore{positions: map[string]*models.Position{}, closes: map[string][]models.ClosePoint{}}
}

func (m *memStore) hold(symbol string, qty int64, avg float64, entry time.Time) {
	m.positions[symbol] = &models.Position{Symbol: symbol, Quantity: qty, AvgPrice: decimal.NewFromFloat(avg), EntryDate: entry}
}

func (m *memStore) GetAllPositions(context.Context) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *memStore) GetPositionBySymbol(_ context.Context, symbol string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", symbol, database.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpsertPosition(_ context.Context, p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if old, ok := m.positions[p.Symbol]; ok {
		cp.EntryDate = old.EntryDate
	}
	m.positions[p.Symbol] = &cp
	return nil
}

func (m *memStore) DeletePositionBySymbol(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; !ok {
		return database.ErrNotFound
	}
	delete(m.positions, symbol)
	return nil
}

func (m *memStore) RecordFill(_ context.Context, fill *models.Fill, fn func(*models.Position) (*models.Position, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fills {
		if f.OrderID == fill.OrderID {
			return false, nil
		}
	}
	var current *models.Position
	if p, ok := m.positions[fill.Symbol]; ok {
		cp := *p
		current = &cp
	}
	next, err := fn(current)
	if err != nil {
		return false, err
	}
	if next == nil {
		delete(m.positions, fill.Symbol)
	} else {
		m.positions[fill.Symbol] = next
	}
	cp := *fill
	m.fills = append(m.fills, &cp)
	return true, nil
}

func (m *memStore) GetLatestSnapshots(context.Context) ([]*models.RSISnapshot, error) {
	return m.snapshots, nil
}

func (m *memStore) GetUniverseSymbols(context.Context) ([]string, error) {
	return m.universe, nil
}

func (m *memStore) UpsertUniverse(_ context.Context, symbols []*models.UniverseSymbol) error {
	for _, s := range symbols {
		m.universe = append(m.universe, s.Symbol)
	}
	return nil
}

func (m *memStore) GetCloses(_ context.Context, symbols []string, start, end time.Time) (map[string][]models.ClosePoint, error) {
	out := map[string][]models.ClosePoint{}
	for _, s := range symbols {
		for _, p := range m.closes[s] {
			if !p.TradeDate.Before(start) && !p.TradeDate.After(end) {
				out[s] = append(out[s], p)
			}
		}
	}
	return out, nil
}

func (m *memStore) UpsertSnapshots(_ context.Context, snaps []*models.RSISnapshot) (int, error) {
	m.upserted = append(m.upserted, snaps...)
	return len(snaps), nil
}

func (m *memStore) CreateTradeLog(_ context.Context, t *models.TradeLog) error {
	m.logs = append(m.logs, t)
	return nil
}

func (m *memStore) CreateTradeHistory(_ context.Context, t *models.TradeHistory) error {
	m.history = append(m.history, t)
	return nil
}

func snapshot(symbol string, rsi, price float64) *models.RSISnapshot {
	return models.NewRSISnapshot(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), symbol, rsi, price)
}

type fakeQuotes map[string]float64

func (q fakeQuotes) LatestPrice(_ context.Context, symbol string, marketOpen bool) (decimal.Decimal, bool, bool) {
	p, ok := q[symbol]
	if !ok {
		return decimal.Zero, false, false
	}
	return decimal.NewFromFloat(p), marketOpen, true
}

type fakeAccount struct {
	cash    decimal.Decimal
	cashErr error
	open    bool
}

func (a *fakeAccount) Cash(context.Context) (decimal.Decimal, error) {
	return a.cash, a.cashErr
}

func (a *fakeAccount) IsMarketOpen() bool { return a.open }

type fakeOrders struct {
	placed []string
	err    error
	n      int
}

func (o *fakeOrders) SubmitMarketOrder(_ context.Context, symbol, side string, qty int64, _ string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.n++
	o.placed = append(o.placed, fmt.Sprintf("%s %d %s", side, qty, symbol))
	return fmt.Sprintf("order-%d", o.n), nil
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, models.Fill) (*models.Position, error) {
	return nil, errors.New("ledger offline")
}
