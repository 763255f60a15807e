package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gainer-scanner/internal/model"
)

// ErrInsufficientData is returned when a required timeframe is missing or
// too short, or the latest price is unusable.
var ErrInsufficientData = errors.New("insufficient candle data")

// Timeframes names the four candle intervals the calculator reads.
type Timeframes struct {
	Short  model.Interval `yaml:"short"`
	Medium model.Interval `yaml:"medium"`
	Hourly model.Interval `yaml:"hourly"`
	Daily  model.Interval `yaml:"daily"`
}

// All returns the intervals in fetch order.
func (t Timeframes) All() []model.Interval {
	return []model.Interval{t.Short, t.Medium, t.Hourly, t.Daily}
}

// Params configures every indicator period the calculator uses.
type Params struct {
	Timeframes Timeframes `yaml:"timeframes"`
	MinBars    int        `yaml:"min_bars"`

	RSIShort  int `yaml:"rsi_short"`
	RSIMedium int `yaml:"rsi_medium"`
	RSIHourly int `yaml:"rsi_hourly"`

	BBPeriod int     `yaml:"bb_period"`
	BBStdDev float64 `yaml:"bb_std_dev"`

	EMAFast  int `yaml:"ema_fast"`
	EMASlow  int `yaml:"ema_slow"`
	EMAStack int `yaml:"ema_stack"`
	EMALong  int `yaml:"ema_long"`

	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`

	StochK int `yaml:"stoch_k"`
	StochD int `yaml:"stoch_d"`

	ATRPeriod        int `yaml:"atr_period"`
	VolumePeriod     int `yaml:"volume_period"`
	SupportDays      int `yaml:"support_days"`
	VolatilityWindow int `yaml:"volatility_window"`

	// TrendUpDeviation is the percent deviation from the long EMA above
	// which the trend reads UP.
	TrendUpDeviation float64 `yaml:"trend_up_deviation"`
	// ATRFallbackPct is the ATR substituted, as percent of price, when
	// ATR cannot be computed.
	ATRFallbackPct float64 `yaml:"atr_fallback_pct"`
}

// DefaultParams returns the standard 5m/15m/1h/1d configuration.
func DefaultParams() Params {
	return Params{
		Timeframes: Timeframes{Short: "5m", Medium: "15m", Hourly: "1h", Daily: "1d"},
		MinBars:    50,

		RSIShort:  7,
		RSIMedium: 7,
		RSIHourly: 14,

		BBPeriod: 20,
		BBStdDev: 2,

		EMAFast:  9,
		EMASlow:  21,
		EMAStack: 20,
		EMALong:  50,

		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,

		StochK: 14,
		StochD: 3,

		ATRPeriod:        14,
		VolumePeriod:     20,
		SupportDays:      7,
		VolatilityWindow: 20,

		TrendUpDeviation: -2,
		ATRFallbackPct:   2,
	}
}

// Calculator turns a CandleSet into a Snapshot.
type Calculator struct {
	p Params
}

// NewCalculator creates a Calculator with the given parameters.
func NewCalculator(p Params) *Calculator {
	return &Calculator{p: p}
}

// Params returns the calculator configuration.
func (c *Calculator) Params() Params { return c.p }

// Calculate computes the snapshot for symbol. It fails only when a
// timeframe has fewer than MinBars candles or the latest price is not a
// positive number; every other gap is filled from the fallback table.
func (c *Calculator) Calculate(symbol string, set model.CandleSet, now time.Time) (Snapshot, error) {
	for _, iv := range c.p.Timeframes.All() {
		if n := len(set[iv]); n < c.p.MinBars {
			return Snapshot{}, fmt.Errorf("%s %s: %d bars, need %d: %w", symbol, iv, n, c.p.MinBars, ErrInsufficientData)
		}
	}

	last, _ := set.Last(c.p.Timeframes.Short)
	if !finite(last.Close) || last.Close <= 0 {
		return Snapshot{}, fmt.Errorf("%s: latest price %v: %w", symbol, last.Close, ErrInsufficientData)
	}

	r := c.read(set, last)
	snap := Snapshot{
		Symbol:     symbol,
		Price:      last.Close,
		CapturedAt: now,
	}

	for _, f := range fallbackTable {
		v := f.compute(&r)
		ok := finite(v)
		if ok && f.valid != nil {
			ok = f.valid(v)
		}
		if !ok {
			v = f.fallback(&snap, &r)
			snap.Fallbacks = append(snap.Fallbacks, f.name)
			slog.Debug("indicator fallback", "symbol", symbol, "field", f.name, "value", v)
		}
		f.set(&snap, v)
	}

	snap.TrendStrength = math.Abs(snap.TrendDeviation)
	switch {
	case snap.UsedFallback(fieldTrendDeviation):
		snap.Trend = TrendNeutral
	case snap.TrendDeviation > c.p.TrendUpDeviation:
		snap.Trend = TrendUp
	default:
		snap.Trend = TrendDown
	}

	return snap, nil
}

// readings holds raw indicator outputs; NaN marks "not computable".
type readings struct {
	price float64

	rsiShort, rsiMedium, rsiHourly float64
	volume, volumeAvg              float64
	bbLower, bbMiddle, bbUpper     float64
	emaFast, emaSlow, emaStack     float64
	emaLong                        float64
	support                        float64
	macd, macdSignal, macdHist     float64
	stochK, stochD                 float64
	atr                            float64
	volatilityRatio                float64

	atrFallbackPct float64
}

func (c *Calculator) read(set model.CandleSet, last model.Candle) readings {
	p := c.p
	short := set[p.Timeframes.Short]
	medium := set[p.Timeframes.Medium]
	hourly := set[p.Timeframes.Hourly]
	daily := set[p.Timeframes.Daily]

	r := readings{price: last.Close, atrFallbackPct: p.ATRFallbackPct}

	r.rsiShort = Feed(NewRSI(p.RSIShort), short)
	r.rsiMedium = Feed(NewRSI(p.RSIMedium), medium)
	r.rsiHourly = Feed(NewRSI(p.RSIHourly), hourly)

	r.emaFast = Feed(NewEMA(p.EMAFast), medium)
	r.emaSlow = Feed(NewEMA(p.EMASlow), medium)
	r.emaStack = Feed(NewEMA(p.EMAStack), medium)
	r.emaLong = Feed(NewEMA(p.EMALong), daily)

	bb := NewBollinger(p.BBPeriod, p.BBStdDev)
	vol := NewSMA(p.VolumePeriod)
	macd := NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal)
	stoch := NewStochastic(p.StochK, p.StochD)
	atr := NewATR(p.ATRPeriod)
	widths := make([]float64, 0, len(short))
	for _, cd := range short {
		bb.Update(cd)
		vol.Push(cd.Volume)
		macd.Update(cd)
		stoch.Update(cd)
		atr.Update(cd)
		if bb.Ready() {
			widths = append(widths, bb.Width())
		}
	}

	r.bbLower, r.bbMiddle, r.bbUpper = math.NaN(), math.NaN(), math.NaN()
	if bb.Ready() {
		r.bbLower, r.bbMiddle, r.bbUpper = bb.Bands()
	}
	r.volume = last.Volume
	r.volumeAvg = readyValue(vol)
	r.macd, r.macdSignal, r.macdHist = math.NaN(), math.NaN(), math.NaN()
	if macd.Ready() {
		r.macd, r.macdSignal, r.macdHist = macd.Value(), macd.Signal(), macd.Histogram()
	}
	r.stochK, r.stochD = math.NaN(), math.NaN()
	if stoch.Ready() {
		r.stochK, r.stochD = stoch.Value(), stoch.D()
	}
	r.atr = readyValue(atr)
	r.volatilityRatio = volatilityRatio(widths, p.VolatilityWindow)

	r.support = math.NaN()
	if n := len(daily); n > 0 {
		days := daily[max(0, n-p.SupportDays):]
		r.support = days[0].Low
		for _, d := range days[1:] {
			r.support = min(r.support, d.Low)
		}
	}

	return r
}

func readyValue(ind Indicator) float64 {
	if !ind.Ready() {
		return math.NaN()
	}
	return ind.Value()
}

// volatilityRatio is the latest band width over the mean width of the
// trailing window (latest included).
func volatilityRatio(widths []float64, window int) float64 {
	if len(widths) == 0 || window <= 0 {
		return math.NaN()
	}
	tail := widths[max(0, len(widths)-window):]
	var sum float64
	for _, w := range tail {
		sum += w
	}
	avg := sum / float64(len(tail))
	if avg <= 0 {
		return math.NaN()
	}
	return widths[len(widths)-1] / avg
}
