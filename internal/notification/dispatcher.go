package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gainer-scanner/internal/portfolio"
)

const sendTimeout = 15 * time.Second

// Dispatcher turns ledger events into alerts and sends each alert to every
// configured notifier. A failing notifier never blocks the others.
type Dispatcher struct {
	notifiers []Notifier
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

// Notify sends alert to all notifiers and joins their errors.
func (d *Dispatcher) Notify(ctx context.Context, alert Alert) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var errs []error
	for _, n := range d.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run sends an alert for every event until ctx is cancelled or events
// is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan portfolio.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := d.Notify(ctx, FormatEvent(ev)); err != nil {
				log.Printf("[notify] %s %s: %v", ev.Kind, ev.Symbol, err)
			}
		}
	}
}

// Started announces that the service is up.
func (d *Dispatcher) Started(ctx context.Context, version string, maxPositions int) {
	msg := fmt.Sprintf("version %s, max %d positions", version, maxPositions)
	if err := d.Notify(ctx, Alert{Level: AlertInfo, Title: "Scanner started", Message: msg}); err != nil {
		log.Printf("[notify] start alert: %v", err)
	}
}

// Stopped announces shutdown with the session statistics. ctx may already
// be cancelled, so a fresh deadline is used.
func (d *Dispatcher) Stopped(stats portfolio.Statistics, active int) {
	msg := fmt.Sprintf("%d trades, win rate %.1f%%, total %+.2f%%, %d still open",
		stats.TotalTrades, stats.WinRatePct, stats.TotalPnLPct, active)
	if err := d.Notify(context.Background(), Alert{Level: AlertInfo, Title: "Scanner stopped", Message: msg}); err != nil {
		log.Printf("[notify] stop alert: %v", err)
	}
}

// TradeUpdate is the machine-readable body of a ledger event alert. Exit
// fields describe the slice booked by this event, at the level price.
type TradeUpdate struct {
	Kind     portfolio.EventKind `json:"kind"`
	SignalID string              `json:"signal_id"`
	From     portfolio.Status    `json:"from,omitempty"`
	To       portfolio.Status    `json:"to"`

	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stop_loss"`
	TP1      float64 `json:"tp1"`
	TP2      float64 `json:"tp2"`

	ObservedPrice float64 `json:"observed_price"`
	ExitPrice     float64 `json:"exit_price,omitempty"`
	ExitFraction  float64 `json:"exit_fraction,omitempty"`
	ExitPnLPct    float64 `json:"exit_pnl_pct,omitempty"`

	RealizedPct float64 `json:"realized_pct"`
	Remaining   float64 `json:"remaining"`

	Stats *portfolio.Statistics `json:"stats,omitempty"`
	At    time.Time             `json:"at"`
}

// NewTradeUpdate extracts the alert body from ev.
func NewTradeUpdate(ev portfolio.Event) TradeUpdate {
	p := ev.Position
	u := TradeUpdate{
		Kind:          ev.Kind,
		SignalID:      p.SignalID,
		From:          ev.From,
		To:            ev.To,
		Entry:         p.Entry,
		StopLoss:      p.StopLoss,
		TP1:           p.TP1,
		TP2:           p.TP2,
		ObservedPrice: ev.Price,
		RealizedPct:   p.RealizedPct,
		Remaining:     p.Remaining,
		Stats:         ev.Stats,
		At:            ev.At,
	}
	if ev.Kind != portfolio.EventOpened {
		if x, ok := p.LastExit(); ok {
			u.ExitPrice, u.ExitFraction, u.ExitPnLPct = x.Price, x.Fraction, x.PnLPct
		}
	}
	return u
}

// FormatEvent renders a ledger event as an alert.
func FormatEvent(ev portfolio.Event) Alert {
	p := ev.Position
	u := NewTradeUpdate(ev)
	a := Alert{Level: AlertInfo, Symbol: ev.Symbol, Trade: &u}

	switch ev.Kind {
	case portfolio.EventOpened:
		a.Title = "New position " + ev.Symbol
		a.Message = fmt.Sprintf("entry %.8g, stop %.8g, tp1 %.8g, tp2 %.8g, level %d",
			p.Entry, p.StopLoss, p.TP1, p.TP2, p.EntryLevel)

	case portfolio.EventTransition:
		a.Title = "First target hit " + ev.Symbol
		a.Message = fmt.Sprintf("booked %.0f%% at %.8g (%+.2f%%), stop moved to entry %.8g",
			u.ExitFraction*100, u.ExitPrice, p.RealizedPct, p.StopLoss)

	case portfolio.EventClosed:
		a.Title = closeTitle(ev.To) + " " + ev.Symbol
		a.Message = fmt.Sprintf("closed at %.8g, trade %+.2f%%", u.ExitPrice, p.RealizedPct)
		if ev.To == portfolio.StatusStopLoss {
			a.Level = AlertWarning
		}
		if ev.Stats != nil {
			a.Message += fmt.Sprintf(" | %d trades, win rate %.1f%%, total %+.2f%%",
				ev.Stats.TotalTrades, ev.Stats.WinRatePct, ev.Stats.TotalPnLPct)
		}

	default:
		a.Title = string(ev.Kind) + " " + ev.Symbol
		a.Message = string(ev.To)
	}
	return a
}

func closeTitle(s portfolio.Status) string {
	switch s {
	case portfolio.StatusSecondTargetHit:
		return "Second target hit"
	case portfolio.StatusStopLoss:
		return "Stop loss"
	case portfolio.StatusBreakeven:
		return "Breakeven exit"
	case portfolio.StatusManuallyClosed:
		return "Closed manually"
	}
	return "Closed"
}
