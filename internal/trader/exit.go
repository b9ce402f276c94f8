package trader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/allocation"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/session"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

// HoldingReader reads positions and the snapshots used to price them
type HoldingReader interface {
	GetAllPositions(ctx context.Context) ([]*models.Position, error)
	GetLatestSnapshots(ctx context.Context) ([]*models.RSISnapshot, error)
}

// Holding is a position priced at the latest snapshot close
type Holding struct {
	Position       *models.Position
	RSI            *float64
	Close          decimal.Decimal
	UnrealizedPL   decimal.Decimal
	UnrealizedPct  float64
	DaysHeld       int
	Classification signal.Classification
	ExitReason     string
}

// ExitReport summarizes an analyze session
type ExitReport struct {
	Holdings     int
	Exits        int
	AverageDowns int
	Actions      session.Summary
}

// ExitSession reviews held positions against exit and average-down rules
type ExitSession struct {
	Deps
	holdings HoldingReader
	now      func() time.Time
}

// NewExitSession creates an ExitSession
func NewExitSession(d Deps, holdings HoldingReader) *ExitSession {
	d.Log = d.Log.With().Str("component", "exit_session").Logger()
	return &ExitSession{Deps: d, holdings: holdings, now: time.Now}
}

// Holdings joins positions with the latest snapshot and classifies them, best
// unrealized P/L first. Positions without a snapshot close are left out.
func (s *ExitSession) Holdings(ctx context.Context) ([]Holding, error) {
	positions, err := s.holdings.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.holdings.GetLatestSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]*models.RSISnapshot, len(snapshots))
	for _, snap := range snapshots {
		bySymbol[snap.Symbol] = snap
	}

	today := dateOnly(s.now())
	var out []Holding
	for _, p := range positions {
		snap, ok := bySymbol[p.Symbol]
		if !ok || !snap.Price.Valid {
			s.Log.Warn().Str("symbol", p.Symbol).Msg("no snapshot for held position")
			continue
		}

		h := Holding{Position: p, Close: snap.Price.Decimal}
		if rsi, ok := snap.RSIValue(); ok {
			h.RSI = &rsi
		}
		qty := decimal.NewFromInt(p.Quantity)
		h.UnrealizedPL = h.Close.Sub(p.AvgPrice).Mul(qty)
		if p.AvgPrice.IsPositive() {
			h.UnrealizedPct = h.Close.Sub(p.AvgPrice).Div(p.AvgPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		h.DaysHeld = int(today.Sub(dateOnly(p.EntryDate)).Hours() / 24)

		h.Classification = s.Classifier.ClassifyHolding(signal.Holding{
			Quantity:         p.Quantity,
			RSI:              h.RSI,
			UnrealizedPnlPct: h.UnrealizedPct,
			DaysHeld:         h.DaysHeld,
		})
		h.ExitReason = s.Classifier.ExitReason(h.Classification)
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UnrealizedPct > out[j].UnrealizedPct })
	return out, nil
}

// Run prints the exit and average-down tables and prompts for each exit candidate
func (s *ExitSession) Run(ctx context.Context) (*ExitReport, error) {
	holdings, err := s.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	report := &ExitReport{Holdings: len(holdings)}
	if len(holdings) == 0 {
		fmt.Fprintln(s.Out, "Portfolio is empty or no snapshots available.")
		return report, nil
	}

	var exits, avgDowns []Holding
	for _, h := range holdings {
		if h.Classification.Exit {
			exits = append(exits, h)
		}
		if h.Classification.AverageDown {
			avgDowns = append(avgDowns, h)
		}
	}
	report.Exits, report.AverageDowns = len(exits), len(avgDowns)

	if len(exits) == 0 && len(avgDowns) == 0 {
		fmt.Fprintln(s.Out, "No exit or average down candidates today.")
		return report, nil
	}
	if len(exits) > 0 {
		fmt.Fprintln(s.Out, "\nExit candidates:")
		printHoldings(s.Out, exits, true)
	}
	if len(avgDowns) > 0 {
		fmt.Fprintln(s.Out, "\nAverage down candidates:")
		printHoldings(s.Out, avgDowns, false)
	}

	steps := make([]session.Step, len(exits))
	for i, h := range exits {
		steps[i] = &exitStep{s: s, h: h}
	}
	report.Actions, err = session.NewLoop(s.Decider, s.Out, s.Log).Run(ctx, "Exit candidate", steps)
	if err != nil {
		return report, err
	}

	fmt.Fprintf(s.Out, "\nAnalysis complete. Took %d actions.\n", report.Actions.Executed)
	return report, nil
}

type exitStep struct {
	s *ExitSession
	h Holding
}

func (e *exitStep) Prepare(context.Context) (session.Prompt, error) {
	h, p := e.h, e.h.Position
	rsi := "n/a"
	if h.RSI != nil {
		rsi = fmt.Sprintf("%.2f", *h.RSI)
	}

	options := []session.Option{session.OptSell, session.OptHold}
	if h.Classification.AverageDown {
		options = append(options, session.OptAverageDown)
	}
	options = append(options, session.OptQuit)

	return session.Prompt{
		Lines: []string{
			fmt.Sprintf("Symbol: %s", p.Symbol),
			fmt.Sprintf("Qty: %d | AvgPrice: %s | Current: %s", p.Quantity, money(p.AvgPrice), money(h.Close)),
			fmt.Sprintf("RSI: %s | HoldingDays: %d | P/L: %s", rsi, h.DaysHeld, money(h.UnrealizedPL)),
			fmt.Sprintf("Reason: %s", h.ExitReason),
		},
		Options: options,
	}, nil
}

func (e *exitStep) Execute(ctx context.Context, d session.Decision) error {
	s, h := e.s, e.h
	symbol := h.Position.Symbol

	if d == session.AverageDown {
		alloc := s.Sizer.Baseline(h.Close)
		if alloc.IsZero() {
			return session.Skipf("Not enough allocation to average down %s.", symbol)
		}
		cash, err := s.Account.Cash(ctx)
		if err != nil {
			return fmt.Errorf("failed to check account balance: %w", err)
		}
		intent := models.TradeIntent{
			Symbol:       symbol,
			Side:         models.TradeTypeBuy,
			Quantity:     alloc.Quantity,
			Price:        h.Close,
			SignalReason: "average down",
		}
		if err := allocation.NewBudget(cash).Check(intent.Cost()); err != nil {
			return session.Skipf("Not enough cash to average down %s (need %s, have %s).", symbol, money(intent.Cost()), money(cash))
		}
		if err := s.Executor.Execute(ctx, intent); err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "Averaged down: bought %d shares of %s at %s\n", intent.Quantity, symbol, money(h.Close))
		return nil
	}

	intent := models.TradeIntent{
		Symbol:       symbol,
		Side:         models.TradeTypeSell,
		Quantity:     h.Position.Quantity,
		Price:        h.Close,
		SignalReason: h.ExitReason,
	}
	if err := s.Executor.Execute(ctx, intent); err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "Sold %d shares of %s\n", intent.Quantity, symbol)
	return nil
}

func printHoldings(w io.Writer, holdings []Holding, withReason bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withReason {
		fmt.Fprintln(tw, "Symbol\tQty\tAvgPrice\tClose\tRSI\tHoldingDays\tUnrealizedPL\tUnrealizedPL%\tExitReason")
	} else {
		fmt.Fprintln(tw, "Symbol\tQty\tAvgPrice\tClose\tRSI\tUnrealizedPL%\tUnrealizedPL")
	}
	for _, h := range holdings {
		rsi := "n/a"
		if h.RSI != nil {
			rsi = fmt.Sprintf("%.2f", *h.RSI)
		}
		p := h.Position
		if withReason {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\t%.2f\t%s\n",
				p.Symbol, p.Quantity, p.AvgPrice.StringFixed(2), h.Close.StringFixed(2), rsi,
				h.DaysHeld, h.UnrealizedPL.StringFixed(2), h.UnrealizedPct, h.ExitReason)
		} else {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.2f\t%s\n",
				p.Symbol, p.Quantity, p.AvgPrice.StringFixed(2), h.Close.StringFixed(2), rsi,
				h.UnrealizedPct, h.UnrealizedPL.StringFixed(2))
		}
	}
	tw.Flush()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
