// Package model holds the market records shared between the fetcher,
// the indicator calculator and the scanner.
package model

import "time"

// Candle is one OHLCV bar as returned by the exchange kline endpoint.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Interval names a candle timeframe in exchange notation ("5m", "1h", "1d").
type Interval string

// CandleSet maps each fetched interval to its candles, oldest first.
// An interval whose fetch failed is absent rather than empty.
type CandleSet map[Interval][]Candle

// Last returns the most recent candle for iv.
func (s CandleSet) Last(iv Interval) (Candle, bool) {
	cs := s[iv]
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Closes extracts the close series for iv.
func (s CandleSet) Closes(iv Interval) []float64 {
	cs := s[iv]
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}
