package indicator

import (
	"math"

	"gainer-scanner/internal/model"
)

// Bollinger computes Bollinger Bands: an SMA middle band with upper and
// lower bands k population standard deviations away.
type Bollinger struct {
	sma *SMA
	k   float64

	lower, middle, upper float64
}

// NewBollinger creates bands over period closes with width k.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BB" }

func (b *Bollinger) Update(candle model.Candle) {
	b.sma.Push(candle.Close)
	if !b.sma.Ready() {
		return
	}

	mean := b.sma.Value()
	var sq float64
	for _, v := range b.sma.window() {
		d := v - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(b.sma.period))

	b.middle = mean
	b.upper = mean + b.k*sd
	b.lower = mean - b.k*sd
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.middle }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

// Bands returns lower, middle and upper.
func (b *Bollinger) Bands() (lower, middle, upper float64) {
	return b.lower, b.middle, b.upper
}

// Width is the band spread relative to the middle band.
func (b *Bollinger) Width() float64 {
	if b.middle == 0 {
		return math.NaN()
	}
	return (b.upper - b.lower) / b.middle
}
