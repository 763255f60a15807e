package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/portfolio"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (f *fakePrices) set(sym string, p float64) {
	f.mu.Lock()
	f.prices[sym] = p
	f.mu.Unlock()
}

func (f *fakePrices) FetchLastPrice(_ context.Context, sym string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.prices[sym]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}

func open(t *testing.T, l *portfolio.Ledger, sym string) {
	t.Helper()
	_, err := l.Open(portfolio.Entry{
		SignalID: "sig-" + sym, Symbol: sym,
		Levels: portfolio.Levels{Entry: 100, StopLoss: 98, TP1: 102, TP2: 104},
	})
	require.NoError(t, err)
}

func drain(ch chan portfolio.Event) []portfolio.Event {
	var out []portfolio.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestTick_DrivesLifecycle(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	open(t, l, "AAAUSDT")
	prices := &fakePrices{prices: map[string]float64{"AAAUSDT": 101}}
	events := make(chan portfolio.Event, 10)
	m := NewMonitor(time.Second, prices, l, events, nil)
	ctx := context.Background()

	assert.Zero(t, m.Tick(ctx))
	p, _ := l.Get("AAAUSDT")
	assert.Equal(t, 101.0, p.Current)

	prices.set("AAAUSDT", 102.5)
	assert.Equal(t, 1, m.Tick(ctx))

	prices.set("AAAUSDT", 99.9)
	assert.Equal(t, 1, m.Tick(ctx))
	assert.False(t, l.IsActive("AAAUSDT"))

	evs := drain(events)
	require.Len(t, evs, 2)
	assert.Equal(t, portfolio.StatusFirstTargetHit, evs[0].To)
	assert.Equal(t, portfolio.EventClosed, evs[1].Kind)
	assert.Equal(t, portfolio.StatusBreakeven, evs[1].To)
	require.NotNil(t, evs[1].Stats)
	assert.Equal(t, 1, evs[1].Stats.TotalTrades)
}

func TestTick_SkipsFailedFetch(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	open(t, l, "AAAUSDT")
	open(t, l, "BBBUSDT")
	prices := &fakePrices{prices: map[string]float64{"BBBUSDT": 97}}
	m := NewMonitor(time.Second, prices, l, nil, nil)

	assert.Equal(t, 1, m.Tick(context.Background()))
	assert.True(t, l.IsActive("AAAUSDT"))
	assert.False(t, l.IsActive("BBBUSDT"))
}

func TestTick_StopsOnCancel(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	open(t, l, "AAAUSDT")
	prices := &fakePrices{prices: map[string]float64{"AAAUSDT": 101}}
	m := NewMonitor(time.Second, prices, l, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Tick(ctx)
	assert.Zero(t, prices.calls)
}

func TestCloseAll(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	open(t, l, "AAAUSDT")
	open(t, l, "BBBUSDT")
	open(t, l, "CCCUSDT")
	prices := &fakePrices{prices: map[string]float64{"AAAUSDT": 101, "CCCUSDT": 90}}
	events := make(chan portfolio.Event, 10)
	m := NewMonitor(time.Second, prices, l, events, nil)

	assert.Equal(t, 3, m.CloseAll(context.Background()))
	assert.Zero(t, l.ActiveCount())

	byStatus := map[portfolio.Status]int{}
	for _, ev := range drain(events) {
		byStatus[ev.To]++
	}
	assert.Equal(t, 2, byStatus[portfolio.StatusManuallyClosed])
	assert.Equal(t, 1, byStatus[portfolio.StatusStopLoss], "CCC crossed its stop on the fresh price")

	closed := l.Closed()
	require.Len(t, closed, 3)
	for _, p := range closed {
		if p.Symbol == "AAAUSDT" {
			assert.InDelta(t, 1.0, p.RealizedPct, 1e-9, "booked at the last observed price")
		}
	}
}

func TestClose_Unknown(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	m := NewMonitor(time.Second, &fakePrices{prices: map[string]float64{"AAAUSDT": 1}}, l, nil, nil)
	_, err := m.Close(context.Background(), "AAAUSDT")
	assert.ErrorIs(t, err, portfolio.ErrUnknownPosition)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	m := NewMonitor(5*time.Millisecond, &fakePrices{prices: map[string]float64{}}, l, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
