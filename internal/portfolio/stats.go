package portfolio

import (
	"encoding/json"
	"math"
)

// Statistics summarises completed trades. P&L figures are percent of entry.
type Statistics struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalPnLPct float64 `json:"total_pnl_pct"`

	FirstTargetHits  int `json:"first_target_hits"`
	SecondTargetHits int `json:"second_target_hits"`
	StopLossHits     int `json:"stop_loss_hits"`
	BreakevenExits   int `json:"breakeven_exits"`
	ManualCloses     int `json:"manual_closes"`

	BestTradePct  float64 `json:"best_trade_pct"`
	WorstTradePct float64 `json:"worst_trade_pct"`
	AvgWinPct     float64 `json:"avg_win_pct"`
	AvgLossPct    float64 `json:"avg_loss_pct"`
	WinRatePct    float64 `json:"win_rate_pct"`

	// ProfitFactor is gross wins over gross losses: +Inf with wins and no
	// losses, 0 with no trades or no wins.
	ProfitFactor float64 `json:"profit_factor"`
}

// ComputeStatistics derives statistics from the full closed history.
func ComputeStatistics(closed []Position) Statistics {
	var s Statistics
	var grossWin, grossLoss float64

	for i := range closed {
		p := &closed[i]
		pnl := p.RealizedPct

		if s.TotalTrades == 0 {
			s.BestTradePct, s.WorstTradePct = pnl, pnl
		}
		s.TotalTrades++
		s.TotalPnLPct += pnl
		s.BestTradePct = max(s.BestTradePct, pnl)
		s.WorstTradePct = min(s.WorstTradePct, pnl)

		switch {
		case pnl > 0:
			s.Wins++
			grossWin += pnl
		case pnl < 0:
			s.Losses++
			grossLoss += pnl
		}

		if p.HitFirstTarget() {
			s.FirstTargetHits++
		}
		switch p.Status {
		case StatusSecondTargetHit:
			s.SecondTargetHits++
		case StatusStopLoss:
			s.StopLossHits++
		case StatusBreakeven:
			s.BreakevenExits++
		case StatusManuallyClosed:
			s.ManualCloses++
		}
	}

	if s.Wins > 0 {
		s.AvgWinPct = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPct = grossLoss / float64(s.Losses)
	}
	if s.TotalTrades > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	switch {
	case s.Wins > 0 && s.Losses == 0:
		s.ProfitFactor = math.Inf(1)
	case s.Losses > 0:
		s.ProfitFactor = grossWin / -grossLoss
	}
	return s
}

// MarshalJSON encodes an unbounded profit factor as null with
// profit_factor_unbounded set, since JSON has no infinity.
func (s Statistics) MarshalJSON() ([]byte, error) {
	type plain Statistics
	out := struct {
		plain
		ProfitFactor *float64 `json:"profit_factor"`
		Unbounded    bool     `json:"profit_factor_unbounded,omitempty"`
	}{plain: plain(s)}
	if math.IsInf(s.ProfitFactor, 1) {
		out.Unbounded = true
	} else {
		pf := s.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}
