// Package breaker trips after repeated failures of a remote dependency so
// callers fail fast instead of waiting on timeouts.
package breaker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls rejected until the cool-down elapses
	HalfOpen              // one trial call allowed through
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker opens after maxFailures consecutive failures, rejects calls for
// coolDown, then lets one trial call through. A successful trial closes it, a
// failed trial reopens it. Context cancellation is not counted as a
// failure of the dependency.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time

	// OnStateChange, if set, is called with the lock held; keep it short.
	OnStateChange func(from, to State)
}

// New creates a closed breaker. name appears in transition logs.
func New(name string, maxFailures int, coolDown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		coolDown:    coolDown,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.lastFailure) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.transition(HalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.failures++
		b.lastFailure = b.now()
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.transition(Open)
		}
		return err
	}

	if b.state == HalfOpen {
		b.transition(Closed)
	}
	b.failures = 0
	return err
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	log.Printf("[breaker] %s: %s -> %s", b.name, from, to)
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
