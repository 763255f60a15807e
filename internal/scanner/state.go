// Package scanner runs the scan loop: it refreshes the gainer list each
// cycle, evaluates every symbol not already held and turns accepted
// candidates into positions.
package scanner

import (
	"sync"
	"time"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/model"
	"gainer-scanner/internal/ringbuf"
	"gainer-scanner/internal/strategy"
)

// Evaluation is the per-symbol result of one cycle, computed once and read
// by every consumer.
type Evaluation struct {
	Cycle      int64
	Coin       string
	Snapshot   indicator.Snapshot
	Conditions strategy.Conditions
	Reason     strategy.RejectReason // empty when accepted
	Imbalance  float64
}

// ScanStats are running totals of the scan loop.
type ScanStats struct {
	Cycles         int64
	SymbolsScanned int64
	SignalsFound   int64
	LastScan       time.Time
	LastDuration   time.Duration
}

// State is the aggregate shared by the scan loop, the monitor loop and
// readers such as the health endpoint. All access goes through its
// methods.
type State struct {
	mu         sync.RWMutex
	cycle      int64
	current    string
	gainers    []model.Ticker
	cache      map[string]Evaluation
	stats      ScanStats
	lastSignal map[string]time.Time
	recent     *ringbuf.Ring[strategy.Signal]
}

// NewState creates an empty state keeping the last recentSignals signals.
func NewState(recentSignals int) *State {
	return &State{
		cache:      make(map[string]Evaluation),
		lastSignal: make(map[string]time.Time),
		recent:     ringbuf.New[strategy.Signal](recentSignals),
	}
}

// BeginCycle starts a new cycle and returns its id.
func (s *State) BeginCycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	return s.cycle
}

// CycleID returns the id of the current cycle.
func (s *State) CycleID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}

// EndCycle records a finished cycle.
func (s *State) EndCycle(at time.Time, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.stats.Cycles++
	s.stats.LastScan = at
	s.stats.LastDuration = took
}

// SetGainers replaces the gainer list and drops cached evaluations for
// symbols that left it. It returns the dropped symbols.
func (s *State) SetGainers(gainers []model.Ticker) []string {
	keep := make(map[string]struct{}, len(gainers))
	for _, g := range gainers {
		keep[g.Symbol] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gainers = append([]model.Ticker(nil), gainers...)

	var purged []string
	for sym := range s.cache {
		if _, ok := keep[sym]; !ok {
			delete(s.cache, sym)
			purged = append(purged, sym)
		}
	}
	return purged
}

// Gainers returns a copy of the current gainer list.
func (s *State) Gainers() []model.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Ticker(nil), s.gainers...)
}

// SetCurrent records the symbol being scanned.
func (s *State) SetCurrent(symbol string) {
	s.mu.Lock()
	s.current = symbol
	s.mu.Unlock()
}

// Current returns the symbol being scanned, or "" between cycles.
func (s *State) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Store caches ev for symbol and counts the symbol as scanned.
func (s *State) Store(symbol string, ev Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[symbol] = ev
	s.stats.SymbolsScanned++
}

// SetReason records the filter outcome on a cached evaluation.
func (s *State) SetReason(symbol string, cycle int64, reason strategy.RejectReason, imbalance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.cache[symbol]
	if !ok || ev.Cycle != cycle {
		return
	}
	ev.Reason = reason
	ev.Imbalance = imbalance
	s.cache[symbol] = ev
}

// Evaluation returns the evaluation of symbol for the given cycle. An
// entry from an older cycle does not match.
func (s *State) Evaluation(symbol string, cycle int64) (Evaluation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.cache[symbol]
	if !ok || ev.Cycle != cycle {
		return Evaluation{}, false
	}
	return ev, true
}

// Latest returns the most recent evaluation of symbol from any cycle.
func (s *State) Latest(symbol string) (Evaluation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.cache[symbol]
	return ev, ok
}

// RecordSignal stores the signal time for cooldowns and keeps the signal
// among the recent ones.
func (s *State) RecordSignal(sig strategy.Signal) {
	s.mu.Lock()
	s.lastSignal[sig.Symbol] = sig.Timestamp
	s.stats.SignalsFound++
	s.mu.Unlock()
	s.recent.Push(sig)
}

// LastSignal reports when symbol last produced a signal.
func (s *State) LastSignal(symbol string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastSignal[symbol]
	return t, ok
}

// PruneCooldowns forgets signal times older than before.
func (s *State) PruneCooldowns(before time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, t := range s.lastSignal {
		if t.Before(before) {
			delete(s.lastSignal, sym)
		}
	}
}

// RecentSignals returns the retained signals, oldest first.
func (s *State) RecentSignals() []strategy.Signal {
	return s.recent.Snapshot()
}

// Stats returns the running totals.
func (s *State) Stats() ScanStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
