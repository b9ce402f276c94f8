// Package indicator computes technical indicators from closing prices.
package indicator

import (
	"errors"
	"fmt"
)

// DefaultRSIPeriod is the conventional RSI lookback
const DefaultRSIPeriod = 14

// ErrInsufficientHistory is returned when there are fewer closes than the period.
// It is a data outcome, not a failure: callers skip the symbol.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Point is one slot of an indicator series. Valid is false until the window has filled.
type Point struct {
	Value float64
	Valid bool
}

// RSI computes the simple-moving-average Relative Strength Index over closes,
// which must be ordered by date ascending. The result has one Point per close.
//
// delta[0] has no predecessor, so the first value needs period deltas after it:
// index period is the first valid slot. A window with no losses yields exactly 100.
func RSI(closes []float64, period int) ([]Point, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid RSI period %d", period)
	}
	if len(closes) < period {
		return nil, ErrInsufficientHistory
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	out := make([]Point, len(closes))
	for i := period; i < len(closes); i++ {
		var sumGain, sumLoss float64
		for j := i - period + 1; j <= i; j++ {
			sumGain += gains[j]
			sumLoss += losses[j]
		}
		out[i] = Point{Value: rsiFromAverages(sumGain/float64(period), sumLoss/float64(period)), Valid: true}
	}
	return out, nil
}

// LatestRSI returns the most recent RSI value. ok is false when the window never filled.
func LatestRSI(closes []float64, period int) (value float64, ok bool, err error) {
	series, err := RSI(closes, period)
	if err != nil {
		return 0, false, err
	}
	last := series[len(series)-1]
	return last.Value, last.Valid, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
