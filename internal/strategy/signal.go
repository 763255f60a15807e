package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/portfolio"
)

// SignalType is the only signal kind emitted: a long entry.
const SignalType = "LONG_ENTRY"

// ErrMalformedSignal is returned instead of building a signal whose
// levels are out of order or non-finite.
var ErrMalformedSignal = errors.New("malformed signal")

// Signal is the accepted-entry record appended to the signal log.
type Signal struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Coin   string `json:"coin"`

	Entry      float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TP1        float64 `json:"tp1"`
	TP2        float64 `json:"tp2"`
	ATR        float64 `json:"atr_value"`
	RewardRisk float64 `json:"reward_risk"`

	EntryLevel int         `json:"entry_level"`
	Confidence int         `json:"confidence"`
	Strength   int         `json:"signal_strength"`
	CoreMet    int         `json:"core_conditions_met"`
	Score      float64     `json:"score"`
	Conditions []Condition `json:"conditions"`

	RSIShort        float64 `json:"rsi_short"`
	RSIMedium       float64 `json:"rsi_medium"`
	RSIHourly       float64 `json:"rsi_hourly"`
	MACDHist        float64 `json:"macd_hist"`
	StochK          float64 `json:"stoch_k"`
	VolatilityRatio float64 `json:"volatility_ratio"`
	Imbalance       float64 `json:"order_book_imbalance"`

	StrategyVersion string    `json:"strategy_version"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewSignal assembles and validates a signal record.
func NewSignal(coin string, snap indicator.Snapshot, conds Conditions, lv portfolio.Levels, tier Tier, imbalance float64, version string, now time.Time) (Signal, error) {
	s := Signal{
		ID:     uuid.NewString(),
		Type:   SignalType,
		Symbol: snap.Symbol,
		Coin:   coin,

		Entry:      lv.Entry,
		StopLoss:   lv.StopLoss,
		TP1:        lv.TP1,
		TP2:        lv.TP2,
		ATR:        lv.ATR,
		RewardRisk: lv.RewardRisk,

		EntryLevel: tier.Level,
		Confidence: tier.Confidence,
		Strength:   conds.Strength(),
		CoreMet:    conds.CoreMet(),
		Score:      conds.Score,
		Conditions: conds.Met(),

		RSIShort:        snap.RSIShort,
		RSIMedium:       snap.RSIMedium,
		RSIHourly:       snap.RSIHourly,
		MACDHist:        snap.MACDHist,
		StochK:          snap.StochK,
		VolatilityRatio: snap.VolatilityRatio,
		Imbalance:       imbalance,

		StrategyVersion: version,
		Timestamp:       now,
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Validate checks symbol presence, finiteness and stop < entry < tp1 < tp2.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("empty symbol: %w", ErrMalformedSignal)
	}
	for _, v := range []float64{s.Entry, s.StopLoss, s.TP1, s.TP2, s.ATR, s.Imbalance} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s: non-finite or non-positive field %v: %w", s.Symbol, v, ErrMalformedSignal)
		}
	}
	if !(s.StopLoss < s.Entry && s.Entry < s.TP1 && s.TP1 < s.TP2) {
		return fmt.Errorf("%s: levels out of order: %w", s.Symbol, ErrMalformedSignal)
	}
	return nil
}

// LedgerEntry converts the signal into a ledger entry.
func (s Signal) LedgerEntry() portfolio.Entry {
	return portfolio.Entry{
		SignalID: s.ID,
		Symbol:   s.Symbol,
		Coin:     s.Coin,
		Level:    s.EntryLevel,
		Levels: portfolio.Levels{
			Entry:      s.Entry,
			StopLoss:   s.StopLoss,
			TP1:        s.TP1,
			TP2:        s.TP2,
			ATR:        s.ATR,
			RewardRisk: s.RewardRisk,
		},
		At: s.Timestamp,
	}
}
