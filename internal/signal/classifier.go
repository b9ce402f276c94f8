// Package signal maps RSI readings and holding metadata to trade signals.
package signal

import (
	"fmt"
	"strings"
)

// Kind is the primary label of a classification
type Kind string

const (
	KindBuyExtreme  Kind = "BUY_EXTREME"
	KindBuyPrimary  Kind = "BUY_PRIMARY"
	KindShort       Kind = "SHORT"
	KindExit        Kind = "EXIT"
	KindAverageDown Kind = "AVERAGE_DOWN"
	KindHold        Kind = "HOLD"
	KindNone        Kind = "NONE"
)

// ExitTrigger identifies one rule that flagged a held position for exit
type ExitTrigger string

const (
	ExitTriggerRSI           ExitTrigger = "RSI"
	ExitTriggerHoldingPeriod ExitTrigger = "HOLDING_PERIOD"
)

// Thresholds configures the classifier
type Thresholds struct {
	ExtremeLow     float64
	PrimaryLow     float64
	Overbought     float64
	ExitRSI        float64
	HoldMaxDays    int
	AvgDownLossPct float64
	AvgDownRSI     float64
	AvgDownMaxQty  int64
}

// Holding describes a position currently held.
// RSI is nil when no snapshot exists for the symbol.
type Holding struct {
	Quantity         int64
	RSI              *float64
	UnrealizedPnlPct float64
	DaysHeld         int
}

// Classification is the result for a held position. Exit and AverageDown are
// independent: a position may be both, and the caller offers both choices.
type Classification struct {
	Kind        Kind
	Exit        bool
	ExitReasons []ExitTrigger
	AverageDown bool
}

// Classifier applies Thresholds to RSI readings
type Classifier struct {
	th Thresholds
}

// NewClassifier creates a Classifier
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Thresholds returns the configured thresholds
func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

// ClassifyEntry labels a symbol that is not currently held
func (c *Classifier) ClassifyEntry(rsi float64) Kind {
	switch {
	case rsi < c.th.ExtremeLow:
		return KindBuyExtreme
	case rsi < c.th.PrimaryLow:
		return KindBuyPrimary
	case rsi > c.th.Overbought:
		return KindShort
	default:
		return KindNone
	}
}

// IsOversold reports whether rsi qualifies as a buy candidate
func (c *Classifier) IsOversold(rsi float64) bool {
	return rsi < c.th.PrimaryLow
}

// IsOverbought reports whether rsi qualifies as a short candidate
func (c *Classifier) IsOverbought(rsi float64) bool {
	return rsi > c.th.Overbought
}

// ClassifyHolding evaluates exit and average-down rules for a held position
func (c *Classifier) ClassifyHolding(h Holding) Classification {
	var out Classification

	if h.RSI != nil && *h.RSI >= c.th.ExitRSI {
		out.ExitReasons = append(out.ExitReasons, ExitTriggerRSI)
	}
	if h.DaysHeld > c.th.HoldMaxDays {
		out.ExitReasons = append(out.ExitReasons, ExitTriggerHoldingPeriod)
	}
	out.Exit = len(out.ExitReasons) > 0

	out.AverageDown = h.RSI != nil &&
		h.UnrealizedPnlPct <= c.th.AvgDownLossPct &&
		*h.RSI <= c.th.AvgDownRSI &&
		h.Quantity <= c.th.AvgDownMaxQty

	switch {
	case out.Exit:
		out.Kind = KindExit
	case out.AverageDown:
		out.Kind = KindAverageDown
	default:
		out.Kind = KindHold
	}
	return out
}

// ExitReason renders the exit triggers, e.g. "RSI ≥ 70; Held > 30d"
func (c *Classifier) ExitReason(cl Classification) string {
	parts := make([]string, 0, len(cl.ExitReasons))
	for _, r := range cl.ExitReasons {
		switch r {
		case ExitTriggerRSI:
			parts = append(parts, fmt.Sprintf("RSI ≥ %s", formatThreshold(c.th.ExitRSI)))
		case ExitTriggerHoldingPeriod:
			parts = append(parts, fmt.Sprintf("Held > %dd", c.th.HoldMaxDays))
		}
	}
	return strings.Join(parts, "; ")
}

// HasTrigger reports whether the classification carries the given exit trigger
func (cl Classification) HasTrigger(t ExitTrigger) bool {
	for _, r := range cl.ExitReasons {
		if r == t {
			return true
		}
	}
	return false
}

func formatThreshold(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
