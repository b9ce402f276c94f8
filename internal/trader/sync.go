package trader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
)

// Reconciler brings the ledger in line with the broker
type Reconciler interface {
	Reconcile(ctx context.Context) (*portfolio.Report, error)
}

// PositionReader lists ledger positions
type PositionReader interface {
	GetAllPositions(ctx context.Context) ([]*models.Position, error)
}

// SummaryRow is one line of the portfolio summary
type SummaryRow struct {
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	Value     decimal.Decimal `json:"value"`
	EntryDate string          `json:"entry_date"`
}

// Summary is the ledger valued at cost, largest position first
type Summary struct {
	Rows  []SummaryRow    `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// Syncer reconciles and then prints the portfolio summary
type Syncer struct {
	reconciler Reconciler
	positions  PositionReader
	out        io.Writer
}

// NewSyncer creates a Syncer
func NewSyncer(reconciler Reconciler, positions PositionReader, out io.Writer) *Syncer {
	return &Syncer{reconciler: reconciler, positions: positions, out: out}
}

// Run reconciles and prints the summary. A broker read failure leaves the ledger untouched.
func (s *Syncer) Run(ctx context.Context) (*portfolio.Report, error) {
	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(s.out, "Portfolio sync complete: %d of %d changes applied (%d updated, %d inserted, %d removed).\n",
		report.Applied, report.Attempted, len(report.Plan.Updates), len(report.Plan.Inserts), len(report.Plan.Deletes))
	for symbol, ferr := range report.Failed {
		fmt.Fprintf(s.out, "  %s: %v\n", symbol, ferr)
	}

	sum, err := BuildSummary(ctx, s.positions)
	if err != nil {
		return report, err
	}
	PrintSummary(s.out, sum)
	return report, nil
}

// BuildSummary values each position at average cost
func BuildSummary(ctx context.Context, positions PositionReader) (Summary, error) {
	list, err := positions.GetAllPositions(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: decimal.Zero}
	for _, p := range list {
		value := p.MarketValue()
		sum.Rows = append(sum.Rows, SummaryRow{
			Symbol:    p.Symbol,
			Quantity:  p.Quantity,
			AvgPrice:  p.AvgPrice,
			Value:     value,
			EntryDate: p.EntryDate.Format("2006-01-02"),
		})
		sum.Total = sum.Total.Add(value)
	}
	sort.SliceStable(sum.Rows, func(i, j int) bool { return sum.Rows[i].Value.GreaterThan(sum.Rows[j].Value) })
	return sum, nil
}

// PrintSummary renders the summary table
func PrintSummary(w io.Writer, sum Summary) {
	if len(sum.Rows) == 0 {
		fmt.Fprintln(w, "Portfolio is empty")
		return
	}
	fmt.Fprintln(w, "\nCurrent Portfolio Summary:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tQty\tAvg Price\tValue\tEntry Date")
	for _, r := range sum.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Symbol, r.Quantity, r.AvgPrice.StringFixed(4), money(r.Value), r.EntryDate)
	}
	tw.Flush()
	fmt.Fprintf(w, "Total Portfolio Value: %s\n", money(sum.Total))
}
