package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/portfolio"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// lifecycle drives a real ledger through open, first target and breakeven.
func lifecycle(t *testing.T) []portfolio.Event {
	t.Helper()
	l := portfolio.NewLedger(0.75)
	opened, err := l.Open(portfolio.Entry{
		SignalID: "sig-1", Symbol: "ABCUSDT", Coin: "ABC", Level: 2,
		Levels: portfolio.Levels{Entry: 100, StopLoss: 98.4, TP1: 102, TP2: 103.6},
		At:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	first, _, err := l.Update("ABCUSDT", 103)
	require.NoError(t, err)
	closed, _, err := l.Update("ABCUSDT", 99.5)
	require.NoError(t, err)
	return []portfolio.Event{opened, first, closed}
}

func TestJournal_RecordsLifecycle(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.insertBatch(lifecycle(t)))

	trades, err := j.Trades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "sig-1", tr.SignalID)
	assert.Equal(t, "ABC", tr.Coin)
	assert.Equal(t, string(portfolio.StatusBreakeven), tr.Status)
	assert.Equal(t, 100.0, tr.Entry)
	assert.Equal(t, 100.0, tr.ExitPrice, "booked at the moved stop")
	assert.InDelta(t, 1.5, tr.RealizedPct, 1e-9)
	assert.True(t, tr.HitTP1)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), tr.OpenedAt)

	n, err := j.ExitCount("sig-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJournal_RunFlushesOnCancel(t *testing.T) {
	j := openTestJournal(t)
	events := make(chan portfolio.Event, 8)
	for _, ev := range lifecycle(t) {
		events <- ev
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx, events)
		close(done)
	}()

	require.Eventually(t, func() bool {
		trades, err := j.Trades(1)
		return err == nil && len(trades) == 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
