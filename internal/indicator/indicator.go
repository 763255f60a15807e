// Package indicator provides technical indicator calculations over candle data.
//
// All indicators implement the Indicator interface, receiving candles one at
// a time and producing float64 values. The Calculator composes them into an
// immutable Snapshot per symbol.
package indicator

import (
	"math"

	"gainer-scanner/internal/model"
)

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds the next closed candle.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Feed runs every candle through ind and returns its final value,
// or NaN when the series was too short for ind to become ready.
func Feed(ind Indicator, candles []model.Candle) float64 {
	for _, c := range candles {
		ind.Update(c)
	}
	if !ind.Ready() {
		return math.NaN()
	}
	return ind.Value()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
