package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/allocation"
	"github.com/trogers1052/rsi-trader/internal/cache"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/session"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

// Account is the broker view a session needs
type Account interface {
	Cash(ctx context.Context) (decimal.Decimal, error)
	IsMarketOpen() bool
}

// Deps are shared by the entry and exit sessions
type Deps struct {
	Classifier *signal.Classifier
	Sizer      *allocation.Sizer
	Quotes     cache.Quoter
	Account    Account
	Executor   Executor
	Decider    session.Decider
	Out        io.Writer
	Log        zerolog.Logger
}

// EntryReport summarizes a trade session
type EntryReport struct {
	Source     string
	Oversold   int
	Overbought int
	Cancelled  bool
	Buys       session.Summary
	Shorts     session.Summary
}

// EntrySession offers oversold and overbought candidates for approval
type EntrySession struct {
	Deps
	loader          *Loader
	overboughtOrder string
}

// NewEntrySession creates an EntrySession
func NewEntrySession(d Deps, loader *Loader, overboughtOrder string) *EntrySession {
	d.Log = d.Log.With().Str("component", "entry_session").Logger()
	return &EntrySession{Deps: d, loader: loader, overboughtOrder: overboughtOrder}
}

// Run loads candidates, previews them and walks the approval loop. Buys run
// first, so cash spent there is not available to later candidates.
func (s *EntrySession) Run(ctx context.Context) (*EntryReport, error) {
	readings, source, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	report := &EntryReport{Source: source}
	if len(readings) == 0 {
		fmt.Fprintln(s.Out, "No snapshot data found. Run scan first.")
		return report, nil
	}

	set := Select(readings, s.Classifier, s.overboughtOrder)
	report.Oversold, report.Overbought = len(set.Oversold), len(set.Overbought)
	if set.Empty() {
		fmt.Fprintln(s.Out, "No extreme RSI candidates found today.")
		return report, nil
	}

	open := s.Account.IsMarketOpen()
	if !open {
		fmt.Fprintln(s.Out, "Market is closed. Using previous daily close for all tickers.")
	}

	budget := allocation.UnknownBudget()
	if cash, err := s.Account.Cash(ctx); err != nil {
		s.Log.Error().Err(err).Msg("failed to get account cash")
		fmt.Fprintln(s.Out, "Available cash unknown; buy orders will be declined.")
	} else {
		budget = allocation.NewBudget(cash)
		fmt.Fprintf(s.Out, "Available cash: %s\n", money(cash))
	}

	if len(set.Oversold) > 0 {
		fmt.Fprintln(s.Out, "\nOversold candidates (preview)")
		previewReadings(s.Out, set.Oversold)
	}
	if len(set.Overbought) > 0 {
		fmt.Fprintln(s.Out, "\nOverbought candidates (preview)")
		previewReadings(s.Out, set.Overbought)
	}

	proceed, err := s.Decider.Confirm(ctx, "\nEnter interactive menu to approve trades?")
	if err != nil {
		return nil, err
	}
	if !proceed {
		fmt.Fprintln(s.Out, "Aborting all trades.")
		report.Cancelled = true
		return report, nil
	}

	loop := session.NewLoop(s.Decider, s.Out, s.Log)
	if len(set.Oversold) > 0 {
		fmt.Fprintln(s.Out, "\nOversold (BUY) candidates")
		report.Buys, err = loop.Run(ctx, "BUY candidate", s.steps(set.Oversold, models.TradeTypeBuy, open, budget))
		if err != nil {
			return report, err
		}
	}
	if len(set.Overbought) > 0 {
		fmt.Fprintln(s.Out, "\nOverbought (SHORT) candidates")
		report.Shorts, err = loop.Run(ctx, "SHORT candidate", s.steps(set.Overbought, models.TradeTypeSell, open, budget))
		if err != nil {
			return report, err
		}
	}

	fmt.Fprintln(s.Out, "\nAll approved trades processed. See trade_log for details.")
	return report, nil
}

func (s *EntrySession) steps(readings []Reading, side string, open bool, budget *allocation.Budget) []session.Step {
	steps := make([]session.Step, len(readings))
	for i, r := range readings {
		steps[i] = &entryStep{s: s, reading: r, side: side, open: open, budget: budget}
	}
	return steps
}

type entryStep struct {
	s       *EntrySession
	reading Reading
	side    string
	open    bool
	budget  *allocation.Budget

	intent models.TradeIntent
}

func (e *entryStep) Prepare(ctx context.Context) (session.Prompt, error) {
	s, r := e.s, e.reading

	price, live, found := s.Quotes.LatestPrice(ctx, r.Symbol, e.open)
	if !found {
		s.Log.Warn().Str("symbol", r.Symbol).Msg("no price available")
		return session.Prompt{}, session.Skipf("No price available for %s.", r.Symbol)
	}

	alloc := s.Sizer.Size(r.RSI, price)
	if alloc.IsZero() {
		if alloc.Dollars.IsZero() {
			return session.Prompt{}, session.Skipf("Skipping %s (RSI %.2f not extreme enough).", r.Symbol, r.RSI)
		}
		return session.Prompt{}, session.Skipf("Skipping %s (%s buys no shares at %s).", r.Symbol, money(alloc.Dollars), money(price))
	}

	e.intent = models.TradeIntent{
		Symbol:       r.Symbol,
		Side:         e.side,
		Quantity:     alloc.Quantity,
		Price:        price,
		SignalReason: fmt.Sprintf("RSI %.2f %s", r.RSI, s.Classifier.ClassifyEntry(r.RSI)),
	}
	cost := e.intent.Cost()

	if e.side == models.TradeTypeBuy {
		if err := e.budget.Check(cost); err != nil {
			if errors.Is(err, allocation.ErrCashUnknown) {
				return session.Prompt{}, session.Skipf("Cash unknown, cannot buy %s.", r.Symbol)
			}
			return session.Prompt{}, session.Skipf("Not enough cash to buy %d shares of %s (need %s, have %s).",
				alloc.Quantity, r.Symbol, money(cost), money(e.budget.Remaining()))
		}
	}

	priceType := "Prev Close"
	if live {
		priceType = "Live"
	}
	return session.Prompt{
		Lines: []string{
			fmt.Sprintf("Symbol: %s, RSI: %.2f, %s Price: %s", r.Symbol, r.RSI, priceType, money(price)),
			fmt.Sprintf("Suggested allocation: %s -> %d shares at %s (Total: %s)",
				money(alloc.Dollars), alloc.Quantity, money(price), money(cost)),
		},
		Options: session.EntryOptions,
	}, nil
}

func (e *entryStep) Execute(ctx context.Context, _ session.Decision) error {
	if err := e.s.Executor.Execute(ctx, e.intent); err != nil {
		return err
	}
	if e.side == models.TradeTypeBuy {
		e.budget.Spend(e.intent.Cost())
	}
	fmt.Fprintf(e.s.Out, "%s %d shares of %s\n", e.side, e.intent.Quantity, e.intent.Symbol)
	return nil
}

func previewReadings(w io.Writer, readings []Reading) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tRSI\tClose")
	for _, r := range readings {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n", r.Symbol, r.RSI, r.Close.StringFixed(2))
	}
	tw.Flush()
}
