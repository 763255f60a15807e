package portfolio

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrRewardRisk rejects levels whose first-target reward does not
	// cover the stop distance by the configured multiple.
	ErrRewardRisk = errors.New("reward:risk below minimum")
	// ErrInvalidLevels rejects non-finite or non-positive inputs.
	ErrInvalidLevels = errors.New("invalid level inputs")
)

// RiskLimits turns an ATR reading into stop and target levels.
// Multipliers are in ATR units, percentages are of entry price.
type RiskLimits struct {
	StopATR float64 `yaml:"stop_atr"`
	TP1ATR  float64 `yaml:"tp1_atr"`
	TP2ATR  float64 `yaml:"tp2_atr"`

	MinStopPct float64 `yaml:"min_stop_pct"`
	MaxStopPct float64 `yaml:"max_stop_pct"`
	MinTP1Pct  float64 `yaml:"min_tp1_pct"`
	MinTP2Pct  float64 `yaml:"min_tp2_pct"`

	MinRewardRisk float64 `yaml:"min_reward_risk"`
}

// DefaultRiskLimits returns the standard level policy.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		StopATR: 0.8,
		TP1ATR:  1.0,
		TP2ATR:  1.8,

		MinStopPct: 0.7,
		MaxStopPct: 2.5,
		MinTP1Pct:  0.5,
		MinTP2Pct:  1.0,

		MinRewardRisk: 1.2,
	}
}

// Validate checks the limits are internally consistent.
func (l RiskLimits) Validate() error {
	switch {
	case l.StopATR <= 0 || l.TP1ATR <= 0 || l.TP2ATR <= 0:
		return fmt.Errorf("risk: ATR multipliers must be positive")
	case !(l.StopATR < l.TP1ATR && l.TP1ATR < l.TP2ATR):
		return fmt.Errorf("risk: need stop_atr < tp1_atr < tp2_atr, got %v/%v/%v", l.StopATR, l.TP1ATR, l.TP2ATR)
	case l.MinStopPct <= 0 || l.MinStopPct > l.MaxStopPct || l.MaxStopPct >= 100:
		return fmt.Errorf("risk: stop band [%v, %v]%% is invalid", l.MinStopPct, l.MaxStopPct)
	case l.MinTP1Pct < 0 || l.MinTP2Pct <= l.MinTP1Pct:
		return fmt.Errorf("risk: need min_tp2_pct > min_tp1_pct >= 0")
	case l.MinRewardRisk < 0:
		return fmt.Errorf("risk: min_reward_risk must be >= 0")
	}
	return nil
}

// Levels are the planned exits for one entry.
type Levels struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TP1        float64 `json:"tp1"`
	TP2        float64 `json:"tp2"`
	ATR        float64 `json:"atr"`
	StopPct    float64 `json:"stop_pct"`
	RewardRisk float64 `json:"reward_risk"`
	// Clamped is set when the ATR stop fell outside the percentage band.
	Clamped bool `json:"clamped"`
}

// Plan derives levels from entry and atr. With valid limits the result
// always satisfies stop < entry < tp1 < tp2. ErrRewardRisk is returned
// together with the computed levels so callers can log them.
func (l RiskLimits) Plan(entry, atr float64) (Levels, error) {
	if !(entry > 0) || !(atr > 0) || math.IsInf(entry, 0) || math.IsInf(atr, 0) {
		return Levels{}, fmt.Errorf("entry=%v atr=%v: %w", entry, atr, ErrInvalidLevels)
	}

	lv := Levels{Entry: entry, ATR: atr}

	dist := l.StopATR * atr
	pct := dist / entry * 100
	switch {
	case pct < l.MinStopPct:
		pct, lv.Clamped = l.MinStopPct, true
		dist = entry * pct / 100
	case pct > l.MaxStopPct:
		pct, lv.Clamped = l.MaxStopPct, true
		dist = entry * pct / 100
	}
	lv.StopLoss = entry - dist
	lv.StopPct = pct

	lv.TP1 = max(entry+l.TP1ATR*atr, entry*(1+l.MinTP1Pct/100))
	lv.TP2 = max(entry+l.TP2ATR*atr, entry*(1+l.MinTP2Pct/100))
	lv.RewardRisk = (lv.TP1 - entry) / dist

	if lv.RewardRisk < l.MinRewardRisk {
		return lv, fmt.Errorf("%.2f < %.2f: %w", lv.RewardRisk, l.MinRewardRisk, ErrRewardRisk)
	}
	return lv, nil
}
