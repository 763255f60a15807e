package strategy

import (
	"context"
	"errors"
	"log"
	"time"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/portfolio"
)

// RejectReason labels why a candidate did not become a signal.
type RejectReason string

const (
	RejectCoreConditions RejectReason = "core_conditions"
	RejectAlreadyActive  RejectReason = "already_active"
	RejectCooldown       RejectReason = "cooldown"
	RejectMaxPositions   RejectReason = "max_positions"
	RejectOrderBook      RejectReason = "order_book"
	RejectRewardRisk     RejectReason = "reward_risk"
	RejectInvalid        RejectReason = "invalid"
)

// FilterConfig holds the entry gates and tiering cut-offs.
type FilterConfig struct {
	MinCoreConditions int           `yaml:"min_core_conditions"`
	Cooldown          time.Duration `yaml:"cooldown"`
	MaxPositions      int           `yaml:"max_positions"`
	MinImbalance      float64       `yaml:"min_imbalance"`

	Level2Score float64 `yaml:"level2_score"`
	Level3Score float64 `yaml:"level3_score"`
}

// DefaultFilterConfig returns the production gates.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinCoreConditions: 4,
		Cooldown:          180 * time.Second,
		MaxPositions:      5,
		MinImbalance:      1.1,
		Level2Score:       90,
		Level3Score:       110,
	}
}

// PositionView is the read side of the position ledger.
type PositionView interface {
	IsActive(symbol string) bool
	ActiveCount() int
}

// CooldownView reports when a symbol last produced a signal.
type CooldownView interface {
	LastSignal(symbol string) (time.Time, bool)
}

// DepthSource yields the bid/ask volume ratio for a symbol. It never
// fails; unavailable books read neutral.
type DepthSource interface {
	FetchOrderBookImbalance(ctx context.Context, symbol string) float64
}

// Decision is the filter outcome. Signal is set only when Reason is empty.
type Decision struct {
	Signal    Signal
	Reason    RejectReason
	Imbalance float64
	Levels    portfolio.Levels
}

// Accepted reports whether the candidate became a signal.
func (d Decision) Accepted() bool { return d.Reason == "" }

// Tier is the entry conviction derived from score and readings.
type Tier struct {
	Level      int
	Confidence int
}

// Filter gates evaluated candidates into signals.
type Filter struct {
	cfg       FilterConfig
	risk      portfolio.RiskLimits
	positions PositionView
	cooldowns CooldownView
	depth     DepthSource
	version   string
	now       func() time.Time
}

// NewFilter wires a filter to its collaborators.
func NewFilter(cfg FilterConfig, risk portfolio.RiskLimits, positions PositionView, cooldowns CooldownView, depth DepthSource, version string) *Filter {
	return &Filter{
		cfg:       cfg,
		risk:      risk,
		positions: positions,
		cooldowns: cooldowns,
		depth:     depth,
		version:   version,
		now:       time.Now,
	}
}

// Evaluate runs the gates in order and stops at the first failure. The
// order book is only fetched once the cheaper gates have passed.
func (f *Filter) Evaluate(ctx context.Context, coin string, snap indicator.Snapshot, conds Conditions) Decision {
	sym := snap.Symbol
	now := f.now()

	if conds.CoreMet() < f.cfg.MinCoreConditions {
		return Decision{Reason: RejectCoreConditions}
	}
	if f.positions.IsActive(sym) {
		return Decision{Reason: RejectAlreadyActive}
	}
	if last, ok := f.cooldowns.LastSignal(sym); ok && now.Sub(last) < f.cfg.Cooldown {
		return Decision{Reason: RejectCooldown}
	}
	if f.positions.ActiveCount() >= f.cfg.MaxPositions {
		return Decision{Reason: RejectMaxPositions}
	}

	imb := f.depth.FetchOrderBookImbalance(ctx, sym)
	if imb < f.cfg.MinImbalance {
		return Decision{Reason: RejectOrderBook, Imbalance: imb}
	}

	lv, err := f.risk.Plan(snap.Price, snap.ATR)
	if lv.Clamped {
		log.Printf("[filter] %s stop clamped to %.2f%% (atr=%.8g)", sym, lv.StopPct, snap.ATR)
	}
	if err != nil {
		reason := RejectInvalid
		if errors.Is(err, portfolio.ErrRewardRisk) {
			reason = RejectRewardRisk
		}
		return Decision{Reason: reason, Imbalance: imb, Levels: lv}
	}

	sig, err := NewSignal(coin, snap, conds, lv, f.Tier(snap, conds), imb, f.version, now)
	if err != nil {
		log.Printf("[filter] %s: %v", sym, err)
		return Decision{Reason: RejectInvalid, Imbalance: imb, Levels: lv}
	}
	return Decision{Signal: sig, Imbalance: imb, Levels: lv}
}

// Tier maps the score to an entry level and confidence. A deep stochastic
// reading lifts the level; strong readings add confidence.
func (f *Filter) Tier(snap indicator.Snapshot, conds Conditions) Tier {
	t := Tier{Level: 1, Confidence: 75}
	switch {
	case conds.Score >= f.cfg.Level3Score:
		t = Tier{Level: 3, Confidence: 95}
	case conds.Score >= f.cfg.Level2Score:
		t = Tier{Level: 2, Confidence: 85}
	}
	if conds.DeepStochastic {
		t.Level = min(t.Level+1, 3)
		t.Confidence += 5
	}
	if conds.ConfirmedMomentum {
		t.Confidence += 5
	}
	t.Confidence = min(t.Confidence, 99)
	return t
}
