package indicator

import (
	"math"

	"gainer-scanner/internal/model"
)

// ATR is the Wilder-smoothed average true range.
type ATR struct {
	smma      *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates an ATR over period bars.
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	tr := candle.High - candle.Low
	if a.seen {
		tr = max(tr, math.Abs(candle.High-a.prevClose), math.Abs(candle.Low-a.prevClose))
	}
	a.prevClose = candle.Close
	a.seen = true
	a.smma.Push(tr)
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }
