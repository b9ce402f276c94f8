package portfolio

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// memoryLedger is an in-memory Ledger and FillStore for tests
type memoryLedger struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	fills     map[string]models.Fill
	failOn    map[string]error

	upserts int
	deletes int
}

func newMemoryLedger(positions ...*models.Position) *memoryLedger {
	m := &memoryLedger{
		positions: make(map[string]*models.Position),
		fills:     make(map[string]models.Fill),
		failOn:    make(map[string]error),
	}
	for _, p := range positions {
		cp := *p
		m.positions[p.Symbol] = &cp
	}
	return m
}

func (m *memoryLedger) GetAllPositions(ctx context.Context) ([]*models.Position, error) {
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

func (m *memoryLedger) UpsertPosition(ctx context.Context, p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failOn[p.Symbol]; err != nil {
		return err
	}
	m.upserts++
	if existing, ok := m.positions[p.Symbol]; ok {
		existing.Quantity = p.Quantity
		existing.AvgPrice = p.AvgPrice
		return nil
	}
	cp := *p
	m.positions[p.Symbol] = &cp
	return nil
}

func (m *memoryLedger) DeletePositionBySymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failOn[symbol]; err != nil {
		return err
	}
	m.deletes++
	delete(m.positions, symbol)
	return nil
}

func (m *memoryLedger) RecordFill(ctx context.Context, fill *models.Fill, fn func(*models.Position) (*models.Position, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.fills[fill.OrderID]; ok {
		return false, nil
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
	m.fills[fill.OrderID] = *fill
	return true, nil
}

func (m *memoryLedger) get(symbol string) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[symbol]
}

type staticSource struct {
	positions []models.ExternalPosition
	err       error
}

func (s staticSource) ExternalPositions(ctx context.Context) ([]models.ExternalPosition, error) {
	return s.positions, s.err
}

var errBoom = errors.New("boom")
