package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger() *Ledger {
	l := NewLedger(0.75)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func entryAt100(symbol string) Entry {
	return Entry{
		SignalID: "sig-" + symbol,
		Symbol:   symbol,
		Coin:     symbol[:len(symbol)-4],
		Level:    1,
		Levels:   Levels{Entry: 100, StopLoss: 98.4, TP1: 102, TP2: 103.6, ATR: 2},
	}
}

func TestLedger_FirstTargetThenBreakeven(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("ABCUSDT"))
	require.NoError(t, err)

	ev, changed, err := l.Update("ABCUSDT", 103)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, EventTransition, ev.Kind)
	assert.Equal(t, StatusActive, ev.From)
	assert.Equal(t, StatusFirstTargetHit, ev.To)

	p := ev.Position
	assert.InDelta(t, 1.5, p.RealizedPct, 1e-9)
	assert.InDelta(t, 0.25, p.Remaining, 1e-12)
	assert.Equal(t, 100.0, p.StopLoss)
	assert.True(t, p.Breakeven)
	assert.InDelta(t, 0.75, p.UnrealizedPct, 1e-9, "25% remaining at +3%")

	ev, changed, err = l.Update("ABCUSDT", 100)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, EventClosed, ev.Kind)
	assert.Equal(t, StatusBreakeven, ev.To)
	assert.InDelta(t, 1.5, ev.Position.RealizedPct, 1e-9)
	assert.Equal(t, 0.0, ev.Position.Remaining)
	assert.False(t, ev.Position.ClosedAt.IsZero())

	assert.False(t, l.IsActive("ABCUSDT"))
	require.Len(t, l.Closed(), 1)
	stats := l.Stats()
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.BreakevenExits)
	assert.Equal(t, 1, stats.FirstTargetHits)
	require.NotNil(t, ev.Stats)
	assert.Equal(t, stats, *ev.Stats)
}

func TestLedger_SecondTarget(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("XYZUSDT"))
	require.NoError(t, err)

	_, _, err = l.Update("XYZUSDT", 102.5)
	require.NoError(t, err)
	ev, changed, err := l.Update("XYZUSDT", 104)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, StatusSecondTargetHit, ev.To)
	// 0.75*2% + 0.25*3.6%
	assert.InDelta(t, 2.4, ev.Position.RealizedPct, 1e-9)
	require.Len(t, ev.Position.Exits, 2)
	assert.Equal(t, 103.6, ev.Position.Exits[1].Price)
}

func TestLedger_StopLoss(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("LOSUSDT"))
	require.NoError(t, err)

	ev, changed, err := l.Update("LOSUSDT", 97)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, StatusStopLoss, ev.To)
	assert.InDelta(t, -1.6, ev.Position.RealizedPct, 1e-9)

	stats := l.Stats()
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.StopLossHits)
	assert.Equal(t, 0.0, stats.ProfitFactor)
}

func TestLedger_OneTransitionPerTick(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("GAPUSDT"))
	require.NoError(t, err)

	ev, _, err := l.Update("GAPUSDT", 110)
	require.NoError(t, err)
	assert.Equal(t, StatusFirstTargetHit, ev.To, "gap past both targets stops at the first")

	ev, _, err = l.Update("GAPUSDT", 110)
	require.NoError(t, err)
	assert.Equal(t, StatusSecondTargetHit, ev.To)
}

func TestLedger_NoLevelCrossed(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("MIDUSDT"))
	require.NoError(t, err)

	_, changed, err := l.Update("MIDUSDT", 101)
	require.NoError(t, err)
	assert.False(t, changed)

	p, ok := l.Get("MIDUSDT")
	require.True(t, ok)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, 101.0, p.Current)
	assert.InDelta(t, 1.0, p.UnrealizedPct, 1e-9)
	assert.InDelta(t, 1.0, l.UnrealizedPct(), 1e-9)
}

func TestLedger_ManualClose(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("MANUSDT"))
	require.NoError(t, err)
	_, _, err = l.Update("MANUSDT", 99)
	require.NoError(t, err)

	ev, err := l.Close("MANUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusManuallyClosed, ev.To)
	assert.InDelta(t, -1.0, ev.Position.RealizedPct, 1e-9)
	assert.Equal(t, 1, l.Stats().ManualCloses)

	_, err = l.Close("MANUSDT")
	assert.ErrorIs(t, err, ErrUnknownPosition)
}

func TestLedger_OpenRejects(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("DUPUSDT"))
	require.NoError(t, err)
	_, err = l.Open(entryAt100("DUPUSDT"))
	assert.ErrorIs(t, err, ErrDuplicatePosition)

	bad := entryAt100("BADUSDT")
	bad.Levels.TP2 = bad.Levels.TP1
	_, err = l.Open(bad)
	assert.ErrorIs(t, err, ErrInvalidSignal)

	bad = entryAt100("BADUSDT")
	bad.Symbol = ""
	_, err = l.Open(bad)
	assert.ErrorIs(t, err, ErrInvalidSignal)

	assert.Equal(t, 1, l.ActiveCount())
}

func TestLedger_UpdateRejects(t *testing.T) {
	l := testLedger()
	_, _, err := l.Update("NOPEUSDT", 1)
	assert.ErrorIs(t, err, ErrUnknownPosition)

	_, err = l.Open(entryAt100("PRCUSDT"))
	require.NoError(t, err)
	_, _, err = l.Update("PRCUSDT", 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestLedger_RemainingNeverIncreases(t *testing.T) {
	l := testLedger()
	_, err := l.Open(entryAt100("MONUSDT"))
	require.NoError(t, err)

	prev := 1.0
	for _, px := range []float64{100.5, 101, 102.1, 101, 103, 100.2, 99.9} {
		_, _, err := l.Update("MONUSDT", px)
		if err != nil {
			break
		}
		p, ok := l.Get("MONUSDT")
		if !ok {
			break
		}
		assert.LessOrEqual(t, p.Remaining, prev)
		prev = p.Remaining
	}
	closed := l.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, StatusBreakeven, closed[0].Status)
}

func TestLedger_ConcurrentAccess(t *testing.T) {
	l := NewLedger(0.75)
	symbols := []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"}
	for _, s := range symbols {
		_, err := l.Open(entryAt100(s))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(2)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _, _ = l.Update(sym, 100+float64(i%3)*0.1)
			}
		}(s)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = l.ActiveCount()
				_ = l.Active()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, l.ActiveCount())
}
