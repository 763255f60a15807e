package indicator

import "gainer-scanner/internal/model"

// SMA calculates Simple Moving Average over a rolling window
// backed by a preallocated circular buffer.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(candle model.Candle) { s.Push(candle.Close) }

// Push feeds a raw value (volume, %K, ...).
func (s *SMA) Push(v float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// window returns the values currently in the buffer, oldest first.
func (s *SMA) window() []float64 {
	n := min(s.count, s.period)
	out := make([]float64, 0, n)
	start := s.idx
	if s.count < s.period {
		start = 0
	}
	for i := 0; i < n; i++ {
		out = append(out, s.buf[(start+i)%s.period])
	}
	return out
}
