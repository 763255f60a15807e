package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/scanner"
	"gainer-scanner/internal/strategy"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	before := h.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func closedEvent(sym string) portfolio.Event {
	return portfolio.Event{
		Kind: portfolio.EventClosed, Symbol: sym, From: portfolio.StatusActive, To: portfolio.StatusStopLoss,
		Position: portfolio.Position{Symbol: sym, Status: portfolio.StatusStopLoss},
		Stats:    &portfolio.Statistics{TotalTrades: 1, Losses: 1},
	}
}

func TestHub_StreamsLedgerEvents(t *testing.T) {
	h := NewHub()
	conn := dial(t, h)

	h.PublishEvent(portfolio.Event{Kind: portfolio.EventOpened, Symbol: "AAAUSDT", To: portfolio.StatusActive})
	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelPosition, env.Channel)
	assert.EqualValues(t, 1, env.Seq)
	assert.False(t, env.Initial)

	var ev portfolio.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, portfolio.EventOpened, ev.Kind)
	assert.Equal(t, "AAAUSDT", ev.Symbol)

	h.PublishEvent(closedEvent("AAAUSDT"))
	assert.Equal(t, ChannelPosition, readEnvelope(t, conn).Channel)
	stats := readEnvelope(t, conn)
	assert.Equal(t, ChannelStats, stats.Channel)
	assert.EqualValues(t, 3, stats.Seq)
}

func TestHub_LateClientGetsRetainedState(t *testing.T) {
	h := NewHub()
	h.PublishEvent(portfolio.Event{Kind: portfolio.EventOpened, Symbol: "AAAUSDT"})
	h.PublishEvent(portfolio.Event{Kind: portfolio.EventOpened, Symbol: "BBBUSDT"})
	h.PublishEvent(closedEvent("BBBUSDT"))
	h.PublishSignal(strategy.Signal{ID: "sig-1", Symbol: "CCCUSDT"})

	conn := dial(t, h)

	var got []string
	for i := 0; i < 3; i++ {
		env := readEnvelope(t, conn)
		assert.True(t, env.Initial)
		got = append(got, env.Channel)
	}
	// closed positions are not retained; order follows the original sequence
	assert.Equal(t, []string{ChannelPosition, ChannelStats, ChannelSignal}, got)
}

func TestHub_AnswersApplicationPing(t *testing.T) {
	h := NewHub()
	conn := dial(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":42}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(msg, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.EqualValues(t, 42, pong.Ping)
}

func TestHub_RunClosesClientsWhenEventsEnd(t *testing.T) {
	h := NewHub()
	conn := dial(t, h)

	events := make(chan portfolio.Event, 1)
	events <- portfolio.Event{Kind: portfolio.EventOpened, Symbol: "AAAUSDT"}
	close(events)
	h.Run(context.Background(), events)

	assert.Equal(t, ChannelPosition, readEnvelope(t, conn).Channel)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, h.ClientCount())

	// broadcasts after close are ignored
	h.PublishSignal(strategy.Signal{ID: "late"})
}

func TestHub_CountsDropsForSlowClient(t *testing.T) {
	h := NewHub()
	var drops atomic.Int32
	h.OnDrop = func() { drops.Add(1) }

	// registered directly so nothing drains its queue
	c := &client{send: make(chan []byte, 1), hub: h}
	h.clients[c] = struct{}{}

	h.PublishSignal(strategy.Signal{ID: "a"})
	h.PublishSignal(strategy.Signal{ID: "b"})
	assert.EqualValues(t, 1, drops.Load())
}

type fakeScan struct {
	stats atomic.Pointer[scanner.ScanStats]
}

func (f *fakeScan) CycleID() int64  { return f.stats.Load().Cycles }
func (f *fakeScan) Current() string { return "AAAUSDT" }
func (f *fakeScan) Stats() scanner.ScanStats {
	return *f.stats.Load()
}

func TestHub_ScanUpdatesOncePerCycle(t *testing.T) {
	h := NewHub()
	conn := dial(t, h)

	src := &fakeScan{}
	src.stats.Store(&scanner.ScanStats{Cycles: 1, SymbolsScanned: 30, LastDuration: 1500 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.RunScanUpdates(ctx, src, 5*time.Millisecond)

	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelScan, env.Channel)
	var up ScanUpdate
	require.NoError(t, json.Unmarshal(env.Data, &up))
	assert.EqualValues(t, 1, up.Cycle)
	assert.EqualValues(t, 1500, up.LastDurationMs)

	src.stats.Store(&scanner.ScanStats{Cycles: 2})
	env = readEnvelope(t, conn)
	assert.EqualValues(t, 2, env.Seq, "no duplicate summary for an unchanged cycle")
}
