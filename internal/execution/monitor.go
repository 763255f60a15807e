// Package execution drives simulated positions with live prices: it polls
// the last traded price of every open position and feeds it to the
// ledger's state machine.
package execution

import (
	"context"
	"errors"
	"log"
	"time"

	"gainer-scanner/internal/metrics"
	"gainer-scanner/internal/portfolio"
)

// PriceSource returns the last traded price of a symbol.
type PriceSource interface {
	FetchLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Ledger is the part of the position ledger the monitor drives.
type Ledger interface {
	ActiveSymbols() []string
	Update(symbol string, price float64) (portfolio.Event, bool, error)
	Close(symbol string) (portfolio.Event, error)
}

// Monitor polls prices for open positions on a fixed interval.
type Monitor struct {
	interval time.Duration
	prices   PriceSource
	ledger   Ledger
	events   chan<- portfolio.Event
	health   *metrics.HealthStatus
	now      func() time.Time
}

// NewMonitor creates a monitor. events and health may be nil.
func NewMonitor(interval time.Duration, prices PriceSource, ledger Ledger, events chan<- portfolio.Event, health *metrics.HealthStatus) *Monitor {
	return &Monitor{
		interval: interval,
		prices:   prices,
		ledger:   ledger,
		events:   events,
		health:   health,
		now:      time.Now,
	}
}

// Run checks positions every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("[monitor] started (interval %s)", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[monitor] stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick applies one price observation to every open position and returns
// the number of transitions. A failed price fetch skips that position
// until the next tick.
func (m *Monitor) Tick(ctx context.Context) int {
	transitions := 0
	for _, sym := range m.ledger.ActiveSymbols() {
		if ctx.Err() != nil {
			break
		}
		price, err := m.prices.FetchLastPrice(ctx, sym)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[monitor] %s: price unavailable: %v", sym, err)
			}
			continue
		}

		ev, changed, err := m.ledger.Update(sym, price)
		if err != nil {
			// closed concurrently between listing and update
			if !errors.Is(err, portfolio.ErrUnknownPosition) {
				log.Printf("[monitor] %s: update at %.8g: %v", sym, price, err)
			}
			continue
		}
		if changed {
			transitions++
			m.publish(ctx, ev)
		}
	}

	if m.health != nil {
		m.health.SetLastMonitorTime(m.now())
	}
	return transitions
}

// Close manually closes symbol's position. A fresh price is fetched
// first; if it crosses a level the resulting exit stands instead.
func (m *Monitor) Close(ctx context.Context, symbol string) (portfolio.Event, error) {
	if price, err := m.prices.FetchLastPrice(ctx, symbol); err == nil {
		ev, changed, err := m.ledger.Update(symbol, price)
		if errors.Is(err, portfolio.ErrUnknownPosition) {
			return portfolio.Event{}, err
		}
		if changed {
			m.publish(ctx, ev)
			if ev.Kind == portfolio.EventClosed {
				return ev, nil
			}
		}
	}

	ev, err := m.ledger.Close(symbol)
	if err != nil {
		return portfolio.Event{}, err
	}
	m.publish(ctx, ev)
	return ev, nil
}

// CloseAll closes every open position and returns how many were closed.
func (m *Monitor) CloseAll(ctx context.Context) int {
	closed := 0
	for _, sym := range m.ledger.ActiveSymbols() {
		if _, err := m.Close(ctx, sym); err != nil {
			log.Printf("[monitor] %s: close: %v", sym, err)
			continue
		}
		closed++
	}
	return closed
}

// publish hands ev to the bus. During shutdown ctx may be done; the event
// is then delivered only if the bus has room.
func (m *Monitor) publish(ctx context.Context, ev portfolio.Event) {
	if m.events == nil {
		return
	}
	select {
	case m.events <- ev:
		return
	default:
	}
	select {
	case m.events <- ev:
	case <-ctx.Done():
		log.Printf("[monitor] %s: %s event dropped, shutting down", ev.Symbol, ev.Kind)
	}
}
