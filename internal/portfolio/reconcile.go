// Package portfolio keeps the local position ledger consistent with fills and with
// the broker of record.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// AvgPriceEpsilon is the largest average-price difference treated as equal
var AvgPriceEpsilon = decimal.New(1, -6)

// Lot is the quantity and cost basis of one symbol
type Lot struct {
	Quantity int64
	AvgPrice decimal.Decimal
}

func (l Lot) differs(o Lot) bool {
	return l.Quantity != o.Quantity || l.AvgPrice.Sub(o.AvgPrice).Abs().GreaterThan(AvgPriceEpsilon)
}

// Update corrects a symbol held on both sides
type Update struct {
	Symbol string
	Old    Lot
	New    Lot
}

// Insert adds a symbol only the broker knows about
type Insert struct {
	Symbol string
	Lot    Lot
}

// Plan is the set of intents that make the ledger match the broker.
// The three sets are disjoint and each is sorted by symbol.
type Plan struct {
	Updates []Update
	Inserts []Insert
	Deletes []string
}

// Changes returns the number of intents in the plan
func (p Plan) Changes() int {
	return len(p.Updates) + len(p.Inserts) + len(p.Deletes)
}

// Diff compares the local ledger against the external snapshot
func Diff(local, external map[string]Lot) Plan {
	var plan Plan

	for symbol, ext := range external {
		loc, ok := local[symbol]
		if !ok {
			plan.Inserts = append(plan.Inserts, Insert{Symbol: symbol, Lot: ext})
			continue
		}
		if loc.differs(ext) {
			plan.Updates = append(plan.Updates, Update{Symbol: symbol, Old: loc, New: ext})
		}
	}
	for symbol := range local {
		if _, ok := external[symbol]; !ok {
			plan.Deletes = append(plan.Deletes, symbol)
		}
	}

	sort.Slice(plan.Updates, func(i, j int) bool { return plan.Updates[i].Symbol < plan.Updates[j].Symbol })
	sort.Slice(plan.Inserts, func(i, j int) bool { return plan.Inserts[i].Symbol < plan.Inserts[j].Symbol })
	sort.Strings(plan.Deletes)
	return plan
}

// LotsFromPositions indexes ledger positions by symbol
func LotsFromPositions(positions []*models.Position) map[string]Lot {
	lots := make(map[string]Lot, len(positions))
	for _, p := range positions {
		lots[p.Symbol] = Lot{Quantity: p.Quantity, AvgPrice: p.AvgPrice}
	}
	return lots
}

// LotsFromExternal indexes broker positions by symbol. A later entry for the
// same symbol replaces an earlier one.
func LotsFromExternal(positions []models.ExternalPosition) map[string]Lot {
	lots := make(map[string]Lot, len(positions))
	for _, p := range positions {
		lots[p.Symbol] = Lot{Quantity: p.Quantity, AvgPrice: p.AvgPrice}
	}
	return lots
}

// Ledger is the local position store
type Ledger interface {
	GetAllPositions(ctx context.Context) ([]*models.Position, error)
	UpsertPosition(ctx context.Context, p *models.Position) error
	DeletePositionBySymbol(ctx context.Context, symbol string) error
}

// ExternalSource reports positions held at the broker
type ExternalSource interface {
	ExternalPositions(ctx context.Context) ([]models.ExternalPosition, error)
}

// Report summarizes a reconciliation run
type Report struct {
	Plan      Plan
	Attempted int
	Applied   int
	Failed    map[string]error
}

// Reconciler applies broker state to the local ledger
type Reconciler struct {
	ledger Ledger
	source ExternalSource
	log    zerolog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler
func NewReconciler(ledger Ledger, source ExternalSource, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		source: source,
		log:    log.With().Str("component", "reconciler").Logger(),
		now:    time.Now,
	}
}

// Reconcile reads both sides, diffs them and applies every intent.
// It returns an error only when either side cannot be read; in that case the
// ledger is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	external, err := r.source.ExternalPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch broker positions: %w", err)
	}
	r.log.Info().Int("count", len(external)).Msg("fetched broker positions")

	local, err := r.ledger.GetAllPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch local positions: %w", err)
	}
	r.log.Info().Int("count", len(local)).Msg("fetched local positions")

	plan := Diff(LotsFromPositions(local), LotsFromExternal(external))
	return r.Apply(ctx, plan), nil
}

// Apply executes a plan best-effort: a failing symbol is logged and the rest still run
func (r *Reconciler) Apply(ctx context.Context, plan Plan) *Report {
	report := &Report{Plan: plan, Failed: make(map[string]error)}
	today := r.now()

	for _, u := range plan.Updates {
		report.Attempted++
		r.log.Info().Str("symbol", u.Symbol).
			Int64("old_qty", u.Old.Quantity).Str("old_avg", u.Old.AvgPrice.StringFixed(4)).
			Int64("new_qty", u.New.Quantity).Str("new_avg", u.New.AvgPrice.StringFixed(4)).
			Msg("updating position")
		err := r.ledger.UpsertPosition(ctx, &models.Position{
			Symbol: u.Symbol, Quantity: u.New.Quantity, AvgPrice: u.New.AvgPrice, EntryDate: today,
		})
		r.record(report, u.Symbol, err)
	}

	for _, in := range plan.Inserts {
		report.Attempted++
		r.log.Info().Str("symbol", in.Symbol).
			Int64("qty", in.Lot.Quantity).Str("avg", in.Lot.AvgPrice.StringFixed(4)).
			Msg("inserting position")
		err := r.ledger.UpsertPosition(ctx, &models.Position{
			Symbol: in.Symbol, Quantity: in.Lot.Quantity, AvgPrice: in.Lot.AvgPrice, EntryDate: today,
		})
		r.record(report, in.Symbol, err)
	}

	for _, symbol := range plan.Deletes {
		report.Attempted++
		r.log.Info().Str("symbol", symbol).Msg("removing position no longer held at broker")
		r.record(report, symbol, r.ledger.DeletePositionBySymbol(ctx, symbol))
	}

	r.log.Info().Int("applied", report.Applied).Int("attempted", report.Attempted).Msg("portfolio sync complete")
	return report
}

func (r *Reconciler) record(report *Report, symbol string, err error) {
	if err != nil {
		r.log.Error().Err(err).Str("symbol", symbol).Msg("failed to apply reconciliation intent")
		report.Failed[symbol] = err
		return
	}
	report.Applied++
}
