package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/trogers1052/rsi-trader/internal/export"
	"github.com/trogers1052/rsi-trader/internal/indicator"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// TableSize is the number of rows in the lowest and highest tables
const TableSize = 10

// ScanStore is the data the scanner reads and writes
type ScanStore interface {
	GetUniverseSymbols(ctx context.Context) ([]string, error)
	GetCloses(ctx context.Context, symbols []string, startDate, endDate time.Time) (map[string][]models.ClosePoint, error)
	UpsertSnapshots(ctx context.Context, snapshots []*models.RSISnapshot) (int, error)
}

// ScanResult is the outcome of one scan
type ScanResult struct {
	Date         time.Time
	Rows         []export.RSIRow
	Universe     int
	Insufficient int
	Stored       int
	Files        export.Files
}

// Scanner computes the latest RSI for every universe symbol
type Scanner struct {
	store     ScanStore
	period    int
	buffer    int
	exportDir string
	log       zerolog.Logger
}

// NewScanner creates a Scanner. History covers period+bufferDays calendar days.
func NewScanner(store ScanStore, period, bufferDays int, exportDir string, log zerolog.Logger) *Scanner {
	return &Scanner{
		store:     store,
		period:    period,
		buffer:    bufferDays,
		exportDir: exportDir,
		log:       log.With().Str("component", "scanner").Logger(),
	}
}

// Scan computes RSI as of today, stores snapshots and exports the CSV tables.
// Rows are sorted by RSI ascending. Symbols without enough history are counted, not failed.
func (s *Scanner) Scan(ctx context.Context, today time.Time) (*ScanResult, error) {
	symbols, err := s.store.GetUniverseSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	if len(symbols) == 0 {
		return nil, errors.New("universe is empty, run `universe load` first")
	}

	start := today.AddDate(0, 0, -(s.period + s.buffer))
	closes, err := s.store.GetCloses(ctx, symbols, start, today)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Date: today, Universe: len(symbols)}
	for _, symbol := range symbols {
		points := closes[symbol]
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Close
		}

		rsi, ok, err := indicator.LatestRSI(values, s.period)
		if errors.Is(err, indicator.ErrInsufficientHistory) || (err == nil && !ok) {
			result.Insufficient++
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, export.RSIRow{Symbol: symbol, RSI: rsi, Close: values[len(values)-1]})
	}

	if len(result.Rows) == 0 {
		s.log.Warn().Int("universe", len(symbols)).Msg("no RSI values calculated")
		return result, nil
	}

	sort.SliceStable(result.Rows, func(i, j int) bool { return result.Rows[i].RSI < result.Rows[j].RSI })

	snapshots := make([]*models.RSISnapshot, len(result.Rows))
	for i, r := range result.Rows {
		snapshots[i] = models.NewRSISnapshot(today, r.Symbol, r.RSI, r.Close)
	}
	result.Stored, err = s.store.UpsertSnapshots(ctx, snapshots)
	if err != nil {
		s.log.Error().Err(err).Int("stored", result.Stored).Int("attempted", len(snapshots)).Msg("some snapshots were not saved")
	}
	s.log.Info().Int("stored", result.Stored).Int("attempted", len(snapshots)).Str("date", today.Format("2006-01-02")).Msg("saved snapshots")

	files, err := export.WriteScan(s.exportDir, today, result.Rows, TableSize)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to export scan tables")
	} else {
		result.Files = files
	}

	s.log.Info().
		Int("universe", result.Universe).
		Int("computed", len(result.Rows)).
		Int("insufficient", result.Insufficient).
		Msg("scan complete")
	return result, nil
}

// RSIValues returns the RSI column of the scan, for the histogram
func (r *ScanResult) RSIValues() []float64 {
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.RSI
	}
	return out
}
