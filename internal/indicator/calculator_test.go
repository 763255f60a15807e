package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// series builds n candles whose close follows f(i).
func series(n int, step time.Duration, f func(i int) float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := f(i)
		out[i] = model.Candle{
			OpenTime: t0.Add(time.Duration(i) * step),
			Open:     c,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			Volume:   1000 + float64(i%7)*100,
		}
	}
	return out
}

func wave(base float64) func(int) float64 {
	return func(i int) float64 { return base + math.Sin(float64(i)/3)*base*0.02 + float64(i)*base*0.0005 }
}

func fullSet(n int, f func(int) float64) model.CandleSet {
	return model.CandleSet{
		"5m":  series(n, 5*time.Minute, f),
		"15m": series(n, 15*time.Minute, f),
		"1h":  series(n, time.Hour, f),
		"1d":  series(n, 24*time.Hour, f),
	}
}

func assertAllFinite(t *testing.T, s Snapshot) {
	t.Helper()
	for name, v := range map[string]float64{
		"price": s.Price, "rsi_short": s.RSIShort, "rsi_medium": s.RSIMedium, "rsi_hourly": s.RSIHourly,
		"volume": s.Volume, "volume_avg": s.VolumeAvg, "bb_lower": s.BBLower, "bb_middle": s.BBMiddle,
		"bb_upper": s.BBUpper, "ema_fast": s.EMAFast, "ema_slow": s.EMASlow, "ema_stack": s.EMAStack,
		"ema_long": s.EMALong, "weekly_support": s.WeeklySupport, "trend_deviation": s.TrendDeviation,
		"trend_strength": s.TrendStrength, "macd": s.MACD, "macd_signal": s.MACDSignal, "macd_hist": s.MACDHist,
		"stoch_k": s.StochK, "stoch_d": s.StochD, "atr": s.ATR, "volatility_ratio": s.VolatilityRatio,
	} {
		assert.Falsef(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite: %v", name, v)
	}
}

func TestCalculate_WellFormedSeries(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	snap, err := calc.Calculate("SOLUSDT", fullSet(200, wave(100)), t0)
	require.NoError(t, err)

	assertAllFinite(t, snap)
	assert.Empty(t, snap.Fallbacks)
	assert.Equal(t, "SOLUSDT", snap.Symbol)
	assert.Equal(t, t0, snap.CapturedAt)
	assert.LessOrEqual(t, snap.BBLower, snap.BBMiddle)
	assert.LessOrEqual(t, snap.BBMiddle, snap.BBUpper)
	for _, r := range []float64{snap.RSIShort, snap.RSIMedium, snap.RSIHourly, snap.StochK, snap.StochD} {
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 100.0)
	}
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.VolatilityRatio, 0.0)
	assert.InDelta(t, snap.MACD-snap.MACDSignal, snap.MACDHist, 1e-9)
	assert.InDelta(t, math.Abs(snap.TrendDeviation), snap.TrendStrength, 1e-12)
}

func TestCalculate_InsufficientBars(t *testing.T) {
	calc := NewCalculator(DefaultParams())

	set := fullSet(200, wave(10))
	set["1h"] = set["1h"][:49]
	_, err := calc.Calculate("X", set, t0)
	assert.True(t, errors.Is(err, ErrInsufficientData), "got %v", err)

	set = fullSet(200, wave(10))
	delete(set, "1d")
	_, err = calc.Calculate("X", set, t0)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// exactly the minimum is enough
	_, err = calc.Calculate("X", fullSet(50, wave(10)), t0)
	assert.NoError(t, err)
}

func TestCalculate_BadLatestPrice(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	set := fullSet(100, wave(10))
	set["5m"][99].Close = 0
	_, err := calc.Calculate("X", set, t0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculate_FlatSeriesUsesFallbacks(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	flat := func(int) float64 { return 5 }
	set := fullSet(100, flat)
	for iv := range set {
		for i := range set[iv] {
			set[iv][i].High, set[iv][i].Low, set[iv][i].Volume = 5, 5, 0
		}
	}

	snap, err := calc.Calculate("FLATUSDT", set, t0)
	require.NoError(t, err)
	assertAllFinite(t, snap)

	// zero band width everywhere: no usable volatility baseline
	assert.Equal(t, 1.0, snap.VolatilityRatio)
	assert.True(t, snap.UsedFallback(fieldVolatilityRatio))
	// no volume at all: ratio reads neutral
	assert.True(t, snap.UsedFallback(fieldVolumeAvg))
	assert.Equal(t, 1.0, snap.VolumeRatio())
	// zero range: ATR falls back to 2% of price
	assert.True(t, snap.UsedFallback(fieldATR))
	assert.InDelta(t, 0.1, snap.ATR, 1e-12)
	assert.Equal(t, 50.0, snap.RSIShort)
	assert.Equal(t, TrendUp, snap.Trend, "price on its EMA is within the up band")
}

func TestCalculate_NonFiniteInputFallsBack(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	set := fullSet(120, wave(20))
	set["15m"][60].Close = math.NaN()
	set["1d"][110].Close = math.Inf(1)

	snap, err := calc.Calculate("BADUSDT", set, t0)
	require.NoError(t, err)
	assertAllFinite(t, snap)

	assert.Equal(t, 50.0, snap.RSIMedium)
	assert.Equal(t, snap.Price, snap.EMAFast)
	assert.Equal(t, snap.Price, snap.EMASlow)
	assert.Equal(t, snap.Price, snap.EMAStack)
	assert.Equal(t, snap.Price, snap.EMALong)
	assert.Equal(t, TrendNeutral, snap.Trend)
	assert.Equal(t, 0.0, snap.TrendStrength)
	assert.ElementsMatch(t, []string{
		fieldRSIMedium, fieldEMAFast, fieldEMASlow, fieldEMAStack, fieldEMALong, fieldTrendDeviation,
	}, snap.Fallbacks)
}

func TestCalculate_TrendLabel(t *testing.T) {
	calc := NewCalculator(DefaultParams())

	up := fullSet(200, func(i int) float64 { return 50 + float64(i)*0.5 })
	snap, err := calc.Calculate("UPUSDT", up, t0)
	require.NoError(t, err)
	assert.Equal(t, TrendUp, snap.Trend)
	assert.Greater(t, snap.TrendDeviation, 0.0)

	down := fullSet(200, func(i int) float64 { return 300 - float64(i) })
	snap, err = calc.Calculate("DOWNUSDT", down, t0)
	require.NoError(t, err)
	assert.Equal(t, TrendDown, snap.Trend)
	assert.Less(t, snap.TrendDeviation, -2.0)
	assert.InDelta(t, -snap.TrendDeviation, snap.TrendStrength, 1e-12)
}

func TestCalculate_WeeklySupport(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	set := fullSet(60, wave(40))
	daily := set["1d"]
	daily[55].Low = 31.5
	daily[50].Low = 10 // outside the last seven days

	snap, err := calc.Calculate("SUPUSDT", set, t0)
	require.NoError(t, err)
	assert.Equal(t, 31.5, snap.WeeklySupport)
}
