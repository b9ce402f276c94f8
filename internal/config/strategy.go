package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trogers1052/rsi-trader/internal/allocation"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

// Source modes for loading the latest RSI snapshots
const (
	SourceModeDB  = "db"
	SourceModeCSV = "csv"
)

// Overbought candidate orderings
const (
	OrderNone = "none"
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Strategy is the trading strategy loaded from YAML
type Strategy struct {
	Universe struct {
		Source     string `yaml:"source"`
		SourceMode string `yaml:"source_mode"`
	} `yaml:"universe"`

	Calculator struct {
		RSIPeriod          int `yaml:"rsi_period"`
		LookbackBufferDays int `yaml:"lookback_buffer_days"`
	} `yaml:"calculator"`

	Entry struct {
		RSIThresholds struct {
			Extreme float64 `yaml:"extreme"`
			Primary float64 `yaml:"primary"`
		} `yaml:"rsi_thresholds"`
		Weighting struct {
			BaselineDollarPerTrade float64 `yaml:"baseline_dollar_per_trade"`
			ExtremeMultiplier      float64 `yaml:"extreme_multiplier"`
			PrimaryMultiplier      float64 `yaml:"primary_multiplier"`
		} `yaml:"weighting"`
		Overbought      float64 `yaml:"overbought"`
		OverboughtOrder string  `yaml:"overbought_order"`
	} `yaml:"entry"`

	Exit struct {
		RSIExit        float64 `yaml:"rsi_exit"`
		HoldMaxDays    int     `yaml:"hold_max_days"`
		AvgDownLossPct float64 `yaml:"avg_down_loss_pct"`
		AvgDownRSI     float64 `yaml:"avg_down_rsi"`
		AvgDownMaxQty  int64   `yaml:"avg_down_max_qty"`
	} `yaml:"exit"`

	Retention struct {
		DaysToKeep int `yaml:"days_to_keep"`
	} `yaml:"retention"`
}

// LoadStrategy reads and validates the strategy file at path
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy config: %w", err)
	}
	return ParseStrategy(data)
}

// ParseStrategy decodes YAML over the defaults and validates. Keys absent from
// data keep their default; keys present keep their value, zero included.
func ParseStrategy(data []byte) (*Strategy, error) {
	s := DefaultStrategy()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse strategy config: %w", err)
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultStrategy returns the strategy used when no file overrides it
func DefaultStrategy() *Strategy {
	var s Strategy
	s.Universe.Source = "data/sp500.csv"
	s.Universe.SourceMode = SourceModeDB

	s.Calculator.RSIPeriod = 14
	s.Calculator.LookbackBufferDays = 10

	s.Entry.RSIThresholds.Extreme = 20
	s.Entry.RSIThresholds.Primary = 26
	s.Entry.Weighting.BaselineDollarPerTrade = 1000
	s.Entry.Weighting.ExtremeMultiplier = 2
	s.Entry.Weighting.PrimaryMultiplier = 1.5
	s.Entry.Overbought = 80
	s.Entry.OverboughtOrder = OrderNone

	s.Exit.RSIExit = 70
	s.Exit.HoldMaxDays = 30
	s.Exit.AvgDownLossPct = -10
	s.Exit.AvgDownRSI = 30
	s.Exit.AvgDownMaxQty = 200

	s.Retention.DaysToKeep = 90
	return &s
}

func validate(s *Strategy) error {
	if strings.TrimSpace(s.Universe.Source) == "" {
		return errors.New("universe.source must not be empty")
	}
	s.Universe.SourceMode = strings.ToLower(strings.TrimSpace(s.Universe.SourceMode))
	if s.Universe.SourceMode != SourceModeDB && s.Universe.SourceMode != SourceModeCSV {
		return fmt.Errorf("universe.source_mode %q must be db or csv", s.Universe.SourceMode)
	}

	if s.Calculator.RSIPeriod < 1 {
		return errors.New("calculator.rsi_period must be at least 1")
	}
	if s.Calculator.LookbackBufferDays < 0 {
		return errors.New("calculator.lookback_buffer_days must not be negative")
	}

	e := s.Entry
	if e.RSIThresholds.Extreme < 0 || e.RSIThresholds.Primary > 100 {
		return errors.New("entry.rsi_thresholds must be within 0..100")
	}
	if e.RSIThresholds.Extreme >= e.RSIThresholds.Primary {
		return errors.New("entry.rsi_thresholds.extreme must be below primary")
	}
	if e.Overbought <= e.RSIThresholds.Primary || e.Overbought > 100 {
		return errors.New("entry.overbought must be above primary and at most 100")
	}
	if e.Weighting.BaselineDollarPerTrade < 0 || e.Weighting.ExtremeMultiplier < 0 || e.Weighting.PrimaryMultiplier < 0 {
		return errors.New("entry.weighting values must not be negative")
	}

	s.Entry.OverboughtOrder = strings.ToLower(strings.TrimSpace(e.OverboughtOrder))
	switch s.Entry.OverboughtOrder {
	case OrderNone, OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("entry.overbought_order %q must be none, asc or desc", e.OverboughtOrder)
	}

	if s.Exit.RSIExit <= 0 || s.Exit.RSIExit > 100 {
		return errors.New("exit.rsi_exit must be within 0..100")
	}
	if s.Exit.HoldMaxDays < 0 {
		return errors.New("exit.hold_max_days must not be negative")
	}
	if s.Exit.AvgDownMaxQty < 0 {
		return errors.New("exit.avg_down_max_qty must not be negative")
	}
	if s.Retention.DaysToKeep < 1 {
		return errors.New("retention.days_to_keep must be at least 1")
	}
	return nil
}

// Thresholds returns the classifier thresholds
func (s *Strategy) Thresholds() signal.Thresholds {
	return signal.Thresholds{
		ExtremeLow:     s.Entry.RSIThresholds.Extreme,
		PrimaryLow:     s.Entry.RSIThresholds.Primary,
		Overbought:     s.Entry.Overbought,
		ExitRSI:        s.Exit.RSIExit,
		HoldMaxDays:    s.Exit.HoldMaxDays,
		AvgDownLossPct: s.Exit.AvgDownLossPct,
		AvgDownRSI:     s.Exit.AvgDownRSI,
		AvgDownMaxQty:  s.Exit.AvgDownMaxQty,
	}
}

// Weighting returns the sizer weighting
func (s *Strategy) Weighting() allocation.Weighting {
	w := s.Entry.Weighting
	return allocation.Weighting{
		BaselineDollars:   decimal.NewFromFloat(w.BaselineDollarPerTrade),
		ExtremeMultiplier: decimal.NewFromFloat(w.ExtremeMultiplier),
		PrimaryMultiplier: decimal.NewFromFloat(w.PrimaryMultiplier),
	}
}

// Sizer builds the allocation sizer for this strategy
func (s *Strategy) Sizer() *allocation.Sizer {
	return allocation.NewSizer(s.Entry.RSIThresholds.Extreme, s.Entry.RSIThresholds.Primary, s.Weighting())
}
