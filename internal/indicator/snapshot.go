package indicator

import "time"

// Trend labels the price position relative to the long daily EMA.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendNeutral Trend = "NEUTRAL"
)

// Snapshot is the indicator reading for one symbol at one point in time.
// Every numeric field is finite; fields that could not be computed carry
// their fallback and are named in Fallbacks.
type Snapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	RSIShort  float64 `json:"rsi_short"`
	RSIMedium float64 `json:"rsi_medium"`
	RSIHourly float64 `json:"rsi_hourly"`

	Volume    float64 `json:"volume"`
	VolumeAvg float64 `json:"volume_avg"`

	BBLower  float64 `json:"bb_lower"`
	BBMiddle float64 `json:"bb_middle"`
	BBUpper  float64 `json:"bb_upper"`

	EMAFast  float64 `json:"ema_fast"`
	EMASlow  float64 `json:"ema_slow"`
	EMAStack float64 `json:"ema_stack"`
	EMALong  float64 `json:"ema_long"`

	WeeklySupport  float64 `json:"weekly_support"`
	Trend          Trend   `json:"trend"`
	TrendDeviation float64 `json:"trend_deviation"`
	TrendStrength  float64 `json:"trend_strength"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	ATR             float64 `json:"atr"`
	VolatilityRatio float64 `json:"volatility_ratio"`

	Fallbacks  []string  `json:"fallbacks,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// VolumeRatio is the latest short-frame volume over its rolling average.
func (s Snapshot) VolumeRatio() float64 {
	if s.VolumeAvg <= 0 {
		return 1.0
	}
	return s.Volume / s.VolumeAvg
}

// UsedFallback reports whether field was substituted.
func (s Snapshot) UsedFallback(field string) bool {
	for _, f := range s.Fallbacks {
		if f == field {
			return true
		}
	}
	return false
}
