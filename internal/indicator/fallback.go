package indicator

import "math"

// Field names, as reported in Snapshot.Fallbacks.
const (
	fieldRSIShort        = "rsi_short"
	fieldRSIMedium       = "rsi_medium"
	fieldRSIHourly       = "rsi_hourly"
	fieldVolume          = "volume"
	fieldVolumeAvg       = "volume_avg"
	fieldBBLower         = "bb_lower"
	fieldBBMiddle        = "bb_middle"
	fieldBBUpper         = "bb_upper"
	fieldEMAFast         = "ema_fast"
	fieldEMASlow         = "ema_slow"
	fieldEMAStack        = "ema_stack"
	fieldEMALong         = "ema_long"
	fieldWeeklySupport   = "weekly_support"
	fieldTrendDeviation  = "trend_deviation"
	fieldMACD            = "macd"
	fieldMACDSignal      = "macd_signal"
	fieldMACDHist        = "macd_hist"
	fieldStochK          = "stoch_k"
	fieldStochD          = "stoch_d"
	fieldATR             = "atr"
	fieldVolatilityRatio = "volatility_ratio"
)

// field binds one snapshot value to its computation and its substitute.
// A computed value is used when finite and, if valid is set, valid.
// fallback sees the snapshot as filled so far, so table order matters.
type field struct {
	name     string
	compute  func(r *readings) float64
	valid    func(v float64) bool
	fallback func(s *Snapshot, r *readings) float64
	set      func(s *Snapshot, v float64)
}

func positive(v float64) bool { return v > 0 }

func constant(v float64) func(*Snapshot, *readings) float64 {
	return func(*Snapshot, *readings) float64 { return v }
}

func priceTimes(f float64) func(*Snapshot, *readings) float64 {
	return func(s *Snapshot, _ *readings) float64 { return s.Price * f }
}

var fallbackTable = []field{
	{name: fieldRSIShort, compute: func(r *readings) float64 { return r.rsiShort }, fallback: constant(50), set: func(s *Snapshot, v float64) { s.RSIShort = v }},
	{name: fieldRSIMedium, compute: func(r *readings) float64 { return r.rsiMedium }, fallback: constant(50), set: func(s *Snapshot, v float64) { s.RSIMedium = v }},
	{name: fieldRSIHourly, compute: func(r *readings) float64 { return r.rsiHourly }, fallback: constant(50), set: func(s *Snapshot, v float64) { s.RSIHourly = v }},

	{name: fieldVolume, compute: func(r *readings) float64 { return r.volume }, valid: func(v float64) bool { return v >= 0 }, fallback: constant(0), set: func(s *Snapshot, v float64) { s.Volume = v }},
	// an average that cannot be formed takes the current volume, so the ratio reads 1.0
	{name: fieldVolumeAvg, compute: func(r *readings) float64 { return r.volumeAvg }, valid: positive, fallback: func(s *Snapshot, _ *readings) float64 { return s.Volume }, set: func(s *Snapshot, v float64) { s.VolumeAvg = v }},

	{name: fieldBBLower, compute: func(r *readings) float64 { return r.bbLower }, valid: positive, fallback: priceTimes(0.98), set: func(s *Snapshot, v float64) { s.BBLower = v }},
	{name: fieldBBMiddle, compute: func(r *readings) float64 { return r.bbMiddle }, valid: positive, fallback: priceTimes(1), set: func(s *Snapshot, v float64) { s.BBMiddle = v }},
	{name: fieldBBUpper, compute: func(r *readings) float64 { return r.bbUpper }, valid: positive, fallback: priceTimes(1.02), set: func(s *Snapshot, v float64) { s.BBUpper = v }},

	{name: fieldEMAFast, compute: func(r *readings) float64 { return r.emaFast }, valid: positive, fallback: priceTimes(1), set: func(s *Snapshot, v float64) { s.EMAFast = v }},
	{name: fieldEMASlow, compute: func(r *readings) float64 { return r.emaSlow }, valid: positive, fallback: priceTimes(1), set: func(s *Snapshot, v float64) { s.EMASlow = v }},
	{name: fieldEMAStack, compute: func(r *readings) float64 { return r.emaStack }, valid: positive, fallback: priceTimes(1), set: func(s *Snapshot, v float64) { s.EMAStack = v }},
	{name: fieldEMALong, compute: func(r *readings) float64 { return r.emaLong }, valid: positive, fallback: priceTimes(1), set: func(s *Snapshot, v float64) { s.EMALong = v }},

	{name: fieldWeeklySupport, compute: func(r *readings) float64 { return r.support }, valid: positive, fallback: priceTimes(0.95), set: func(s *Snapshot, v float64) { s.WeeklySupport = v }},
	{name: fieldTrendDeviation, compute: func(r *readings) float64 {
		if !(r.emaLong > 0) {
			return math.NaN()
		}
		return (r.price - r.emaLong) / r.emaLong * 100
	}, fallback: constant(0), set: func(s *Snapshot, v float64) { s.TrendDeviation = v }},

	{name: fieldMACD, compute: func(r *readings) float64 { return r.macd }, fallback: constant(0), set: func(s *Snapshot, v float64) { s.MACD = v }},
	{name: fieldMACDSignal, compute: func(r *readings) float64 { return r.macdSignal }, fallback: constant(0), set: func(s *Snapshot, v float64) { s.MACDSignal = v }},
	{name: fieldMACDHist, compute: func(r *readings) float64 { return r.macdHist }, fallback: constant(0), set: func(s *Snapshot, v float64) { s.MACDHist = v }},

	{name: fieldStochK, compute: func(r *readings) float64 { return r.stochK }, fallback: constant(50), set: func(s *Snapshot, v float64) { s.StochK = v }},
	{name: fieldStochD, compute: func(r *readings) float64 { return r.stochD }, fallback: constant(50), set: func(s *Snapshot, v float64) { s.StochD = v }},

	{name: fieldATR, compute: func(r *readings) float64 { return r.atr }, valid: positive, fallback: func(s *Snapshot, r *readings) float64 {
		return s.Price * r.atrFallbackPct / 100
	}, set: func(s *Snapshot, v float64) { s.ATR = v }},
	{name: fieldVolatilityRatio, compute: func(r *readings) float64 { return r.volatilityRatio }, valid: positive, fallback: constant(1.0), set: func(s *Snapshot, v float64) { s.VolatilityRatio = v }},
}
