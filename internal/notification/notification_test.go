package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/portfolio"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func openPosition(t *testing.T, l *portfolio.Ledger, sym string) portfolio.Event {
	t.Helper()
	ev, err := l.Open(portfolio.Entry{
		SignalID: "sig-" + sym, Symbol: sym, Level: 2,
		Levels: portfolio.Levels{Entry: 100, StopLoss: 98.4, TP1: 102, TP2: 103.6},
	})
	require.NoError(t, err)
	return ev
}

func update(t *testing.T, l *portfolio.Ledger, sym string, price float64) portfolio.Event {
	t.Helper()
	ev, changed, err := l.Update(sym, price)
	require.NoError(t, err)
	require.True(t, changed)
	return ev
}

func TestFormatEvent(t *testing.T) {
	l := portfolio.NewLedger(0.75)

	a := FormatEvent(openPosition(t, l, "ABCUSDT"))
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "New position ABCUSDT", a.Title)
	assert.Contains(t, a.Message, "level 2")
	require.NotNil(t, a.Trade)
	assert.Zero(t, a.Trade.ExitPrice)

	a = FormatEvent(update(t, l, "ABCUSDT", 103))
	assert.Contains(t, a.Message, "booked 75% at 102 ")
	assert.Equal(t, portfolio.StatusActive, a.Trade.From)
	assert.Equal(t, portfolio.StatusFirstTargetHit, a.Trade.To)
	assert.InDelta(t, 0.25, a.Trade.Remaining, 1e-9)

	a = FormatEvent(update(t, l, "ABCUSDT", 99))
	assert.True(t, strings.HasPrefix(a.Title, "Breakeven exit"))
	assert.Contains(t, a.Message, "closed at 100,")
	assert.Contains(t, a.Message, "+1.50%")
}

func TestFormatEvent_StopUsesBookedPrice(t *testing.T) {
	l := portfolio.NewLedger(0.75)
	openPosition(t, l, "ABCUSDT")

	a := FormatEvent(update(t, l, "ABCUSDT", 97))
	assert.Equal(t, AlertWarning, a.Level)
	assert.True(t, strings.HasPrefix(a.Title, "Stop loss"))
	assert.Contains(t, a.Message, "closed at 98.4,")
	assert.Contains(t, a.Message, "-1.60%")
	assert.Contains(t, a.Message, "1 trades")

	require.NotNil(t, a.Trade)
	assert.Equal(t, 97.0, a.Trade.ObservedPrice)
	assert.Equal(t, 98.4, a.Trade.ExitPrice)
	assert.Equal(t, 1.0, a.Trade.ExitFraction)
	require.NotNil(t, a.Trade.Stats)
	assert.Equal(t, 1, a.Trade.Stats.Losses)
}

func TestDispatcher_FailingNotifierDoesNotBlockOthers(t *testing.T) {
	bad := &recorder{err: errors.New("boom")}
	good := &recorder{}
	d := NewDispatcher(bad, good)

	err := d.Notify(context.Background(), Alert{Title: "x"})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestDispatcher_RunDrainsEvents(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(NewLogNotifier(), r)

	ch := make(chan portfolio.Event, 2)
	ch <- portfolio.Event{Kind: portfolio.EventOpened, Symbol: "A"}
	ch <- portfolio.Event{Kind: portfolio.EventClosed, Symbol: "A", To: portfolio.StatusSecondTargetHit}
	close(ch)

	d.Run(context.Background(), ch)
	assert.Equal(t, 2, r.count())
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Stop loss", Message: "at 1.5", Symbol: "ABCUSDT"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Contains(t, got["text"], `at 1\.5`)
}

func TestTelegramNotifier_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "chat not found")
}

func TestWebhookNotifier_TradePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	l := portfolio.NewLedger(0.75)
	openPosition(t, l, "ABCUSDT")
	update(t, l, "ABCUSDT", 103)
	alert := FormatEvent(update(t, l, "ABCUSDT", 104))

	require.NoError(t, NewWebhookNotifier(srv.URL).Send(context.Background(), alert))
	assert.Equal(t, "ABCUSDT", got["symbol"])
	trade, ok := got["trade"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed", trade["kind"])
	assert.Equal(t, "FIRST_TARGET_HIT", trade["from"])
	assert.Equal(t, "SECOND_TARGET_HIT", trade["to"])
	assert.Equal(t, 103.6, trade["exit_price"])
	assert.Equal(t, 104.0, trade["observed_price"])
	assert.Equal(t, "sig-ABCUSDT", trade["signal_id"])
	assert.InDelta(t, 2.4, trade["realized_pct"], 1e-9)
	assert.Equal(t, 0.0, trade["remaining"])
}

func TestWebhookNotifier_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := NewWebhookNotifier(srv.URL).Send(ctx, Alert{Title: "x"})
	assert.ErrorContains(t, err, "502")
}
