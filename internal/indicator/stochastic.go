package indicator

import "gainer-scanner/internal/model"

// Stochastic computes the %K oscillator over a high/low lookback and
// %D as the SMA of %K.
type Stochastic struct {
	period int
	highs  []float64
	lows   []float64
	idx    int
	count  int

	k float64
	d *SMA
}

// NewStochastic creates a Stochastic(kPeriod, dPeriod), typically 14/3.
func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{
		period: kPeriod,
		highs:  make([]float64, kPeriod),
		lows:   make([]float64, kPeriod),
		d:      NewSMA(dPeriod),
	}
}

func (s *Stochastic) Name() string { return "STOCH" }

func (s *Stochastic) Update(candle model.Candle) {
	s.highs[s.idx] = candle.High
	s.lows[s.idx] = candle.Low
	s.idx = (s.idx + 1) % s.period
	s.count++
	if s.count < s.period {
		return
	}

	hh, ll := s.highs[0], s.lows[0]
	for i := 1; i < s.period; i++ {
		hh = max(hh, s.highs[i])
		ll = min(ll, s.lows[i])
	}

	if hh == ll {
		// no range to place the close in
		s.k = 50
	} else {
		s.k = (candle.Close - ll) / (hh - ll) * 100
	}
	s.d.Push(s.k)
}

// Value returns %K.
func (s *Stochastic) Value() float64 { return s.k }
func (s *Stochastic) Ready() bool    { return s.d.Ready() }

// D returns %D.
func (s *Stochastic) D() float64 { return s.d.Value() }
