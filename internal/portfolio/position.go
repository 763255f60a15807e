package portfolio

import (
	"math"
	"time"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusFirstTargetHit  Status = "FIRST_TARGET_HIT"
	StatusSecondTargetHit Status = "SECOND_TARGET_HIT"
	StatusStopLoss        Status = "STOP_LOSS"
	StatusBreakeven       Status = "BREAKEVEN"
	StatusManuallyClosed  Status = "MANUALLY_CLOSED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSecondTargetHit, StatusStopLoss, StatusBreakeven, StatusManuallyClosed:
		return true
	}
	return false
}

// Exit records one booked slice of a position.
type Exit struct {
	Status   Status    `json:"status"`
	Price    float64   `json:"price"`
	Fraction float64   `json:"fraction"`
	PnLPct   float64   `json:"pnl_pct"`
	At       time.Time `json:"at"`
}

// Position is a simulated long position. Sizes are fractions of the
// original position; P&L is in percent of entry.
type Position struct {
	Symbol     string `json:"symbol"`
	Coin       string `json:"coin"`
	SignalID   string `json:"signal_id"`
	EntryLevel int    `json:"entry_level"`

	Entry       float64 `json:"entry"`
	Current     float64 `json:"current"`
	TP1         float64 `json:"tp1"`
	TP2         float64 `json:"tp2"`
	StopLoss    float64 `json:"stop_loss"`
	InitialStop float64 `json:"initial_stop"`
	Breakeven   bool    `json:"breakeven"`

	Status        Status  `json:"status"`
	Remaining     float64 `json:"remaining"`
	RealizedPct   float64 `json:"realized_pct"`
	UnrealizedPct float64 `json:"unrealized_pct"`
	Exits         []Exit  `json:"exits,omitempty"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// TotalPnLPct is realized plus unrealized P&L.
func (p *Position) TotalPnLPct() float64 {
	return p.RealizedPct + p.UnrealizedPct
}

// HitFirstTarget reports whether the partial exit at TP1 was booked.
func (p *Position) HitFirstTarget() bool {
	for _, e := range p.Exits {
		if e.Status == StatusFirstTargetHit {
			return true
		}
	}
	return false
}

// clone returns a copy that shares no slices with p.
func (p *Position) clone() Position {
	cp := *p
	cp.Exits = append([]Exit(nil), p.Exits...)
	return cp
}

func (p *Position) pnlAt(price float64) float64 {
	return (price - p.Entry) / p.Entry * 100
}

// book closes fraction of the original size at price.
func (p *Position) book(status Status, price, fraction float64, now time.Time) {
	fraction = math.Min(fraction, p.Remaining)
	pnl := fraction * p.pnlAt(price)
	p.RealizedPct += pnl
	p.Remaining -= fraction
	if p.Remaining < 1e-12 {
		p.Remaining = 0
	}
	p.Exits = append(p.Exits, Exit{Status: status, Price: price, Fraction: fraction, PnLPct: pnl, At: now})
	p.Status = status
	if status.Terminal() {
		p.ClosedAt = now
	}
}

// advance applies one price observation and makes at most one
// transition. It returns the status before the observation and whether a
// transition happened.
func (p *Position) advance(price float64, firstExit float64, now time.Time) (Status, bool) {
	from := p.Status
	if from.Terminal() {
		return from, false
	}
	p.Current = price

	switch from {
	case StatusActive:
		switch {
		case price >= p.TP1:
			p.book(StatusFirstTargetHit, p.TP1, firstExit, now)
			p.StopLoss = p.Entry
			p.Breakeven = true
		case price <= p.StopLoss:
			p.book(StatusStopLoss, p.StopLoss, p.Remaining, now)
		}
	case StatusFirstTargetHit:
		switch {
		case price >= p.TP2:
			p.book(StatusSecondTargetHit, p.TP2, p.Remaining, now)
		case price <= p.StopLoss:
			p.book(StatusBreakeven, p.StopLoss, p.Remaining, now)
		}
	}

	p.refreshUnrealized()
	return from, p.Status != from
}

// LastExit returns the most recently booked exit.
func (p *Position) LastExit() (Exit, bool) {
	if len(p.Exits) == 0 {
		return Exit{}, false
	}
	return p.Exits[len(p.Exits)-1], true
}

// closeManually books the remainder at the last observed price.
func (p *Position) closeManually(now time.Time) Status {
	from := p.Status
	p.book(StatusManuallyClosed, p.Current, p.Remaining, now)
	p.refreshUnrealized()
	return from
}

func (p *Position) refreshUnrealized() {
	if p.Status.Terminal() || p.Remaining == 0 {
		p.UnrealizedPct = 0
		return
	}
	p.UnrealizedPct = p.Remaining * p.pnlAt(p.Current)
}
