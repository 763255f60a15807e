// Package strategy evaluates entry conditions on an indicator snapshot and
// gates them into long-entry signals.
package strategy

import (
	"math"

	"gainer-scanner/internal/indicator"
)

// Condition names one rule of the entry vocabulary.
type Condition string

const (
	BandTouch          Condition = "band_touch"
	OversoldRecovery   Condition = "oversold_recovery"
	MomentumBuilding   Condition = "momentum_building"
	StochasticRecovery Condition = "stochastic_recovery"
	TrendAlignment     Condition = "trend_alignment"
	VolumeConfirm      Condition = "volume_confirm"
)

// CoreConditions are the five rules counted against the entry minimum.
var CoreConditions = []Condition{BandTouch, OversoldRecovery, MomentumBuilding, StochasticRecovery, TrendAlignment}

var allConditions = []Condition{BandTouch, OversoldRecovery, MomentumBuilding, StochasticRecovery, TrendAlignment, VolumeConfirm}

// Thresholds parameterise every rule. Factors are multiplicative on price
// levels; RSI and stochastic bounds are on the 0..100 scale.
type Thresholds struct {
	HighVolatilityRatio float64 `yaml:"high_volatility_ratio"`

	BandTouchFactor        float64 `yaml:"band_touch_factor"`
	BandTouchFactorHighVol float64 `yaml:"band_touch_factor_high_vol"`

	RSIFloor          float64 `yaml:"rsi_floor"`
	RSICeiling        float64 `yaml:"rsi_ceiling"`
	RSICeilingHighVol float64 `yaml:"rsi_ceiling_high_vol"`

	MACDHistFloor float64 `yaml:"macd_hist_floor"`

	StochCutoff            float64 `yaml:"stoch_cutoff"`
	StochDeep              float64 `yaml:"stoch_deep"`
	StochDeepSlack         float64 `yaml:"stoch_deep_slack"`
	StochRegular           float64 `yaml:"stoch_regular"`
	StochEarlyCrossGap     float64 `yaml:"stoch_early_cross_gap"`
	StochConsolidationLow  float64 `yaml:"stoch_consolidation_low"`
	StochConsolidationBand float64 `yaml:"stoch_consolidation_band"`

	EMAStackTolerance float64 `yaml:"ema_stack_tolerance"`
	TrendStrengthMin  float64 `yaml:"trend_strength_min"`
	SupportBouncePct  float64 `yaml:"support_bounce_pct"`

	VolumeLow  float64 `yaml:"volume_low"`
	VolumeHigh float64 `yaml:"volume_high"`
}

// DefaultThresholds returns the production rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighVolatilityRatio: 1.2,

		BandTouchFactor:        1.008,
		BandTouchFactorHighVol: 1.015,

		RSIFloor:          25,
		RSICeiling:        50,
		RSICeilingHighVol: 55,

		MACDHistFloor: -0.001,

		StochCutoff:            40,
		StochDeep:              20,
		StochDeepSlack:         2,
		StochRegular:           30,
		StochEarlyCrossGap:     5,
		StochConsolidationLow:  25,
		StochConsolidationBand: 3,

		EMAStackTolerance: 0.998,
		TrendStrengthMin:  3,
		SupportBouncePct:  2,

		VolumeLow:  0.8,
		VolumeHigh: 1.3,
	}
}

// Weights assign score points to each satisfied rule and strong reading.
type Weights struct {
	BandTouch          float64 `yaml:"band_touch"`
	OversoldRecovery   float64 `yaml:"oversold_recovery"`
	MomentumBuilding   float64 `yaml:"momentum_building"`
	StochasticRecovery float64 `yaml:"stochastic_recovery"`
	TrendAlignment     float64 `yaml:"trend_alignment"`
	VolumeConfirm      float64 `yaml:"volume_confirm"`

	DeepStochastic    float64 `yaml:"deep_stochastic"`
	ConfirmedMomentum float64 `yaml:"confirmed_momentum"`
}

// DefaultWeights gives each core rule 20 points, the volume bonus 10 and
// each strong reading 5.
func DefaultWeights() Weights {
	return Weights{
		BandTouch:          20,
		OversoldRecovery:   20,
		MomentumBuilding:   20,
		StochasticRecovery: 20,
		TrendAlignment:     20,
		VolumeConfirm:      10,
		DeepStochastic:     5,
		ConfirmedMomentum:  5,
	}
}

// Conditions is the evaluated rule set for one snapshot.
type Conditions struct {
	BandTouch          bool `json:"band_touch"`
	OversoldRecovery   bool `json:"oversold_recovery"`
	MomentumBuilding   bool `json:"momentum_building"`
	StochasticRecovery bool `json:"stochastic_recovery"`
	TrendAlignment     bool `json:"trend_alignment"`
	VolumeConfirm      bool `json:"volume_confirm"`

	HighVolatility    bool `json:"high_volatility"`
	DeepStochastic    bool `json:"deep_stochastic"`
	ConfirmedMomentum bool `json:"confirmed_momentum"`

	Score float64 `json:"score"`
}

// CoreMet counts satisfied core rules.
func (c Conditions) CoreMet() int {
	n := 0
	for _, ok := range []bool{c.BandTouch, c.OversoldRecovery, c.MomentumBuilding, c.StochasticRecovery, c.TrendAlignment} {
		if ok {
			n++
		}
	}
	return n
}

// Strength is core rules met plus the volume bonus.
func (c Conditions) Strength() int {
	if c.VolumeConfirm {
		return c.CoreMet() + 1
	}
	return c.CoreMet()
}

// Met lists the satisfied rules in vocabulary order.
func (c Conditions) Met() []Condition {
	var out []Condition
	for _, cond := range allConditions {
		if c.Has(cond) {
			out = append(out, cond)
		}
	}
	return out
}

// Has reports whether cond is satisfied.
func (c Conditions) Has(cond Condition) bool {
	switch cond {
	case BandTouch:
		return c.BandTouch
	case OversoldRecovery:
		return c.OversoldRecovery
	case MomentumBuilding:
		return c.MomentumBuilding
	case StochasticRecovery:
		return c.StochasticRecovery
	case TrendAlignment:
		return c.TrendAlignment
	case VolumeConfirm:
		return c.VolumeConfirm
	}
	return false
}

// Evaluate applies every rule to s. It is a pure function of its inputs.
func Evaluate(s indicator.Snapshot, th Thresholds, w Weights) Conditions {
	var c Conditions
	c.HighVolatility = s.VolatilityRatio > th.HighVolatilityRatio

	bandFactor, rsiCeiling := th.BandTouchFactor, th.RSICeiling
	if c.HighVolatility {
		bandFactor, rsiCeiling = th.BandTouchFactorHighVol, th.RSICeilingHighVol
	}

	c.BandTouch = s.Price <= s.BBLower*bandFactor
	c.OversoldRecovery = s.RSIShort > th.RSIFloor && s.RSIShort < rsiCeiling

	c.ConfirmedMomentum = s.MACD > s.MACDSignal && s.MACDHist > 0
	c.MomentumBuilding = s.MACDHist > th.MACDHistFloor || c.ConfirmedMomentum

	k, d := s.StochK, s.StochD
	c.DeepStochastic = k < th.StochDeep
	deep := k < th.StochDeep && k >= d-th.StochDeepSlack
	regular := k < th.StochRegular && k > d
	earlyCross := k > d && k-d < th.StochEarlyCrossGap
	consolidation := k > th.StochConsolidationLow && math.Abs(k-d) <= th.StochConsolidationBand
	c.StochasticRecovery = k < th.StochCutoff && (deep || regular || earlyCross || consolidation)

	nearStack := s.Price > s.EMAStack*th.EMAStackTolerance
	strongUp := s.Trend == indicator.TrendUp && s.TrendStrength > th.TrendStrengthMin
	supportBounce := s.Price >= s.WeeklySupport &&
		s.Price <= s.WeeklySupport*(1+th.SupportBouncePct/100) &&
		s.RSIShort > th.RSIFloor
	c.TrendAlignment = nearStack || strongUp || supportBounce

	vr := s.VolumeRatio()
	c.VolumeConfirm = vr < th.VolumeLow || vr > th.VolumeHigh

	c.Score = score(c, w)
	return c
}

func score(c Conditions, w Weights) float64 {
	var total float64
	add := func(ok bool, pts float64) {
		if ok {
			total += pts
		}
	}
	add(c.BandTouch, w.BandTouch)
	add(c.OversoldRecovery, w.OversoldRecovery)
	add(c.MomentumBuilding, w.MomentumBuilding)
	add(c.StochasticRecovery, w.StochasticRecovery)
	add(c.TrendAlignment, w.TrendAlignment)
	add(c.VolumeConfirm, w.VolumeConfirm)
	add(c.DeepStochastic && c.StochasticRecovery, w.DeepStochastic)
	add(c.ConfirmedMomentum, w.ConfirmedMomentum)
	return total
}
