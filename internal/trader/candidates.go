// Package trader runs the RSI workflows: scanning the universe, the entry and
// exit approval sessions, order execution and portfolio sync.
package trader

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/config"
	"github.com/trogers1052/rsi-trader/internal/export"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

// Reading is the latest RSI and close of one symbol
type Reading struct {
	Symbol string          `json:"symbol"`
	RSI    float64         `json:"rsi"`
	Close  decimal.Decimal `json:"close"`
}

// CandidateSet holds entry candidates in the order they are offered
type CandidateSet struct {
	Oversold   []Reading `json:"oversold"`
	Overbought []Reading `json:"overbought"`
}

// Empty reports whether there is nothing to offer
func (c CandidateSet) Empty() bool {
	return len(c.Oversold) == 0 && len(c.Overbought) == 0
}

// Select picks oversold readings sorted by RSI ascending and overbought readings
// in the configured order. OrderNone keeps the input order.
func Select(readings []Reading, classifier *signal.Classifier, overboughtOrder string) CandidateSet {
	var set CandidateSet
	for _, r := range readings {
		switch {
		case classifier.IsOversold(r.RSI):
			set.Oversold = append(set.Oversold, r)
		case classifier.IsOverbought(r.RSI):
			set.Overbought = append(set.Overbought, r)
		}
	}

	sort.SliceStable(set.Oversold, func(i, j int) bool { return set.Oversold[i].RSI < set.Oversold[j].RSI })
	switch overboughtOrder {
	case config.OrderAsc:
		sort.SliceStable(set.Overbought, func(i, j int) bool { return set.Overbought[i].RSI < set.Overbought[j].RSI })
	case config.OrderDesc:
		sort.SliceStable(set.Overbought, func(i, j int) bool { return set.Overbought[i].RSI > set.Overbought[j].RSI })
	}
	return set
}

// ReadingsFromSnapshots drops snapshots without an RSI
func ReadingsFromSnapshots(snapshots []*models.RSISnapshot) []Reading {
	out := make([]Reading, 0, len(snapshots))
	for _, s := range snapshots {
		rsi, ok := s.RSIValue()
		if !ok {
			continue
		}
		out = append(out, Reading{Symbol: s.Symbol, RSI: rsi, Close: s.Price.Decimal})
	}
	return out
}

// SnapshotReader reads the most recent RSI snapshots
type SnapshotReader interface {
	GetLatestSnapshots(ctx context.Context) ([]*models.RSISnapshot, error)
}

// Loader loads readings from the database, falling back to the exported CSV tables
type Loader struct {
	snapshots SnapshotReader
	mode      string
	exportDir string
	log       zerolog.Logger
}

// NewLoader creates a Loader. mode is config.SourceModeDB or config.SourceModeCSV.
func NewLoader(snapshots SnapshotReader, mode, exportDir string, log zerolog.Logger) *Loader {
	return &Loader{snapshots: snapshots, mode: mode, exportDir: exportDir, log: log}
}

// Load returns readings and where they came from ("db" or "csv").
// No data anywhere is an empty result, not an error.
func (l *Loader) Load(ctx context.Context) ([]Reading, string, error) {
	if l.mode == config.SourceModeDB {
		snaps, err := l.snapshots.GetLatestSnapshots(ctx)
		if err != nil {
			l.log.Error().Err(err).Msg("failed to load snapshots from database, falling back to CSV")
		} else if readings := ReadingsFromSnapshots(snaps); len(readings) > 0 {
			l.log.Info().Int("symbols", len(readings)).Msg("loaded snapshots from database")
			return readings, config.SourceModeDB, nil
		} else {
			l.log.Warn().Msg("no snapshot data found in database, falling back to CSV")
		}
	}

	readings, err := l.loadCSV()
	if err != nil {
		return nil, "", err
	}
	return readings, config.SourceModeCSV, nil
}

func (l *Loader) loadCSV() ([]Reading, error) {
	files, found, err := export.LatestFiles(l.exportDir)
	if err != nil {
		return nil, err
	}
	if !found {
		l.log.Warn().Str("dir", l.exportDir).Msg("no CSV scan tables found")
		return nil, nil
	}

	seen := make(map[string]bool)
	var readings []Reading
	for _, path := range []string{files.Lowest, files.Highest} {
		rows, err := export.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load CSV fallback: %w", err)
		}
		for _, r := range rows {
			if seen[r.Symbol] {
				continue
			}
			seen[r.Symbol] = true
			readings = append(readings, Reading{Symbol: r.Symbol, RSI: r.RSI, Close: decimal.NewFromFloat(r.Close)})
		}
	}
	l.log.Info().Int("symbols", len(readings)).Str("file", files.Lowest).Msg("loaded snapshots from CSV")
	return readings, nil
}
