// Package portfolio tracks simulated positions through their exit
// lifecycle and derives trading statistics from the closed history.
package portfolio

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

var (
	ErrDuplicatePosition = errors.New("position already active")
	ErrUnknownPosition   = errors.New("no active position")
	ErrInvalidSignal     = errors.New("invalid entry")
	ErrInvalidPrice      = errors.New("invalid price")
)

// Entry opens a position.
type Entry struct {
	SignalID string
	Symbol   string
	Coin     string
	Level    int
	Levels   Levels
	At       time.Time
}

func (e Entry) validate() error {
	lv := e.Levels
	for _, v := range []float64{lv.Entry, lv.StopLoss, lv.TP1, lv.TP2} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s: non-finite or non-positive level: %w", e.Symbol, ErrInvalidSignal)
		}
	}
	switch {
	case e.Symbol == "":
		return fmt.Errorf("empty symbol: %w", ErrInvalidSignal)
	case !(lv.StopLoss < lv.Entry && lv.Entry < lv.TP1 && lv.TP1 < lv.TP2):
		return fmt.Errorf("%s: levels out of order sl=%v entry=%v tp1=%v tp2=%v: %w",
			e.Symbol, lv.StopLoss, lv.Entry, lv.TP1, lv.TP2, ErrInvalidSignal)
	}
	return nil
}

// EventKind classifies ledger events.
type EventKind string

const (
	EventOpened     EventKind = "opened"
	EventTransition EventKind = "transition"
	EventClosed     EventKind = "closed"
)

// Event describes one ledger change. Position is a copy taken after the
// change; Stats is set on closes.
type Event struct {
	Kind     EventKind   `json:"kind"`
	Symbol   string      `json:"symbol"`
	From     Status      `json:"from,omitempty"`
	To       Status      `json:"to"`
	Price    float64     `json:"price"`
	Position Position    `json:"position"`
	Stats    *Statistics `json:"stats,omitempty"`
	At       time.Time   `json:"at"`
}

// Ledger is the set of active positions plus the closed history.
// All methods are safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	active    map[string]*Position
	closed    []Position
	stats     Statistics
	firstExit float64
	now       func() time.Time
}

// NewLedger creates an empty ledger. firstExit is the fraction of the
// position booked at the first target.
func NewLedger(firstExit float64) *Ledger {
	return &Ledger{
		active:    make(map[string]*Position),
		closed:    make([]Position, 0, 64),
		firstExit: firstExit,
		now:       time.Now,
	}
}

// Open adds an ACTIVE position for e.Symbol.
func (l *Ledger) Open(e Entry) (Event, error) {
	if err := e.validate(); err != nil {
		return Event{}, err
	}
	at := e.At
	if at.IsZero() {
		at = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[e.Symbol]; ok {
		return Event{}, fmt.Errorf("%s: %w", e.Symbol, ErrDuplicatePosition)
	}

	p := &Position{
		Symbol:      e.Symbol,
		Coin:        e.Coin,
		SignalID:    e.SignalID,
		EntryLevel:  e.Level,
		Entry:       e.Levels.Entry,
		Current:     e.Levels.Entry,
		TP1:         e.Levels.TP1,
		TP2:         e.Levels.TP2,
		StopLoss:    e.Levels.StopLoss,
		InitialStop: e.Levels.StopLoss,
		Status:      StatusActive,
		Remaining:   1,
		OpenedAt:    at,
	}
	l.active[e.Symbol] = p

	log.Printf("[ledger] opened %s entry=%.8g sl=%.8g tp1=%.8g tp2=%.8g", p.Symbol, p.Entry, p.StopLoss, p.TP1, p.TP2)
	return Event{Kind: EventOpened, Symbol: p.Symbol, To: StatusActive, Price: p.Entry, Position: p.clone(), At: at}, nil
}

// Update applies a price observation to symbol's position. changed is
// false when the price moved no level; the position's current price and
// unrealized P&L are refreshed either way.
func (l *Ledger) Update(symbol string, price float64) (ev Event, changed bool, err error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return Event{}, false, fmt.Errorf("%s: %v: %w", symbol, price, ErrInvalidPrice)
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.active[symbol]
	if !ok {
		return Event{}, false, fmt.Errorf("%s: %w", symbol, ErrUnknownPosition)
	}

	from, changed := p.advance(price, l.firstExit, now)
	if !changed {
		return Event{}, false, nil
	}
	return l.transitionLocked(p, from, price, now), true, nil
}

// Close manually closes symbol's position at its last observed price.
func (l *Ledger) Close(symbol string) (Event, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.active[symbol]
	if !ok {
		return Event{}, fmt.Errorf("%s: %w", symbol, ErrUnknownPosition)
	}
	from := p.closeManually(now)
	return l.transitionLocked(p, from, p.Current, now), nil
}

func (l *Ledger) transitionLocked(p *Position, from Status, price float64, now time.Time) Event {
	ev := Event{Kind: EventTransition, Symbol: p.Symbol, From: from, To: p.Status, Price: price, At: now}

	if p.Status.Terminal() {
		delete(l.active, p.Symbol)
		l.closed = append(l.closed, p.clone())
		l.stats = ComputeStatistics(l.closed)
		stats := l.stats
		ev.Kind = EventClosed
		ev.Stats = &stats
		log.Printf("[ledger] closed %s %s pnl=%.2f%%", p.Symbol, p.Status, p.RealizedPct)
	} else {
		log.Printf("[ledger] %s %s -> %s at %.8g", p.Symbol, from, p.Status, price)
	}

	ev.Position = p.clone()
	return ev
}

// Get returns a copy of symbol's active position.
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.active[symbol]
	if !ok {
		return Position{}, false
	}
	return p.clone(), true
}

// Active returns copies of all active positions, oldest first.
func (l *Ledger) Active() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.active))
	for _, p := range l.active {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// ActiveSymbols returns the symbols with an active position.
func (l *Ledger) ActiveSymbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.active))
	for s := range l.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) IsActive(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.active[symbol]
	return ok
}

func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// Closed returns the closed history, oldest first.
func (l *Ledger) Closed() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, len(l.closed))
	for i := range l.closed {
		out[i] = l.closed[i].clone()
	}
	return out
}

// Stats returns the statistics as of the last completed trade.
func (l *Ledger) Stats() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// UnrealizedPct sums unrealized P&L across active positions.
func (l *Ledger) UnrealizedPct() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.active {
		total += p.UnrealizedPct
	}
	return total
}
