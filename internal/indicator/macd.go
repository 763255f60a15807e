package indicator

import "gainer-scanner/internal/model"

// MACD is the fast EMA minus the slow EMA, with an EMA signal line
// over that difference.
type MACD struct {
	fast, slow, signal *EMA
	line               float64
}

// NewMACD creates a MACD(fast, slow, signal), typically 12/26/9.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	if !m.slow.Ready() || !m.fast.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Push(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Ready reports whether the signal line has seeded.
func (m *MACD) Ready() bool { return m.signal.Ready() }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns line minus signal.
func (m *MACD) Histogram() float64 { return m.line - m.signal.Value() }
