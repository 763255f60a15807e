package scanner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/metrics"
	"gainer-scanner/internal/model"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/strategy"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candles(n int, step time.Duration) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := 10 + math.Sin(float64(i)/3)*0.2 + float64(i)*0.005
		out[i] = model.Candle{
			OpenTime: t0.Add(time.Duration(i) * step),
			Open:     c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1000 + float64(i%7)*100,
		}
	}
	return out
}

func goodSet() model.CandleSet {
	return model.CandleSet{
		"5m":  candles(120, 5*time.Minute),
		"15m": candles(120, 15*time.Minute),
		"1h":  candles(120, time.Hour),
		"1d":  candles(120, 24*time.Hour),
	}
}

type fakeMarket struct {
	mu      sync.Mutex
	tickers []model.Ticker
	sets    map[string]model.CandleSet
	err     error
	fetched []string
}

func (f *fakeMarket) FetchTickerSnapshot(ctx context.Context) ([]model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers, f.err
}

func (f *fakeMarket) FetchCandles(ctx context.Context, symbol string, _ []model.Interval) model.CandleSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, symbol)
	return f.sets[symbol]
}

type fakeDepth float64

func (d fakeDepth) FetchOrderBookImbalance(context.Context, string) float64 { return float64(d) }

type memLog struct{ signals []strategy.Signal }

func (m *memLog) Append(sig strategy.Signal) error {
	m.signals = append(m.signals, sig)
	return nil
}

type fixture struct {
	market  *fakeMarket
	ledger  *portfolio.Ledger
	state   *State
	log     *memLog
	events  chan portfolio.Event
	metrics *metrics.Metrics
	scanner *Scanner
}

func newFixture(t *testing.T, minCore int) *fixture {
	t.Helper()
	f := &fixture{
		market: &fakeMarket{
			tickers: []model.Ticker{
				{Symbol: "AAAUSDT", LastPrice: 10, ChangePercent: 20},
				{Symbol: "BBBUSDT", LastPrice: 1, ChangePercent: 10},
			},
			sets: map[string]model.CandleSet{"AAAUSDT": goodSet()},
		},
		ledger:  portfolio.NewLedger(0.75),
		state:   NewState(10),
		log:     &memLog{},
		events:  make(chan portfolio.Event, 10),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}

	fcfg := strategy.DefaultFilterConfig()
	fcfg.MinCoreConditions = minCore
	filter := strategy.NewFilter(fcfg, portfolio.DefaultRiskLimits(), f.ledger, f.state, fakeDepth(2), "test")

	cfg := DefaultConfig()
	cfg.SymbolDelay, cfg.CycleDelay = 0, time.Millisecond
	f.scanner = New(cfg, Deps{
		MarketData: f.market,
		Calculator: indicator.NewCalculator(indicator.DefaultParams()),
		Thresholds: strategy.DefaultThresholds(),
		Weights:    strategy.DefaultWeights(),
		Filter:     filter,
		Ledger:     f.ledger,
		State:      f.state,
		SignalLog:  f.log,
		Events:     f.events,
		Metrics:    f.metrics,
	})
	return f
}

func TestRunCycle_OpensPositionForAcceptedCandidate(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.scanner.RunCycle(context.Background()))

	assert.True(t, f.ledger.IsActive("AAAUSDT"))
	require.Len(t, f.log.signals, 1)
	sig := f.log.signals[0]
	assert.Equal(t, "AAA", sig.Coin)
	assert.Less(t, sig.StopLoss, sig.Entry)
	assert.Less(t, sig.TP1, sig.TP2)

	select {
	case ev := <-f.events:
		assert.Equal(t, portfolio.EventOpened, ev.Kind)
		assert.Equal(t, "AAAUSDT", ev.Symbol)
	default:
		t.Fatal("expected an opened event")
	}

	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, f.market.fetched)

	st := f.state.Stats()
	assert.EqualValues(t, 1, st.Cycles)
	assert.EqualValues(t, 1, st.SymbolsScanned)
	assert.EqualValues(t, 1, st.SignalsFound)

	ev, ok := f.state.Evaluation("AAAUSDT", 1)
	require.True(t, ok)
	assert.Empty(t, ev.Reason)
	assert.Equal(t, 2.0, ev.Imbalance)
	_, ok = f.state.Evaluation("BBBUSDT", 1)
	assert.False(t, ok, "insufficient data is not cached")

	_, ok = f.state.LastSignal("AAAUSDT")
	assert.True(t, ok)
	assert.Len(t, f.state.RecentSignals(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignalsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InsufficientData))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.GainersTracked))
}

func TestRunCycle_SkipsActiveAndPurgesDepartedSymbols(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.scanner.RunCycle(ctx))

	f.market.fetched = nil
	require.NoError(t, f.scanner.RunCycle(ctx))
	assert.Equal(t, []string{"BBBUSDT"}, f.market.fetched, "held symbol is not rescanned")
	_, ok := f.state.Latest("AAAUSDT")
	assert.True(t, ok)

	f.market.tickers = f.market.tickers[1:]
	require.NoError(t, f.scanner.RunCycle(ctx))
	_, ok = f.state.Latest("AAAUSDT")
	assert.False(t, ok, "evaluation dropped once the symbol left the gainer list")
	assert.EqualValues(t, 3, f.state.CycleID())
}

func TestRunCycle_ScansGainersAsSelected(t *testing.T) {
	f := newFixture(t, 6)
	f.market.tickers = []model.Ticker{
		{Symbol: "BBBUSDT", LastPrice: 1, ChangePercent: 10},
		{Symbol: "CCCFDUSD", LastPrice: 1, ChangePercent: 30},
		{Symbol: "AAAUSDT", LastPrice: 10, ChangePercent: 20},
	}

	require.NoError(t, f.scanner.RunCycle(context.Background()))
	assert.Equal(t, []string{"BBBUSDT", "CCCFDUSD", "AAAUSDT"}, f.market.fetched)
	assert.Len(t, f.state.Gainers(), 3)
}

func TestPublish_DeliversAfterCancelWhenBusHasRoom(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		f.scanner.publish(ctx, portfolio.Event{Kind: portfolio.EventOpened, Symbol: "XYZUSDT"})
		select {
		case got := <-f.events:
			assert.Equal(t, "XYZUSDT", got.Symbol)
		default:
			t.Fatalf("opened event dropped on attempt %d", i)
		}
	}
}

func TestRunCycle_RecordsRejection(t *testing.T) {
	f := newFixture(t, 6)

	require.NoError(t, f.scanner.RunCycle(context.Background()))
	assert.False(t, f.ledger.IsActive("AAAUSDT"))
	assert.Empty(t, f.log.signals)

	ev, ok := f.state.Evaluation("AAAUSDT", 1)
	require.True(t, ok)
	assert.Equal(t, strategy.RejectCoreConditions, ev.Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RejectionsTotal.WithLabelValues("core_conditions")))
}

func TestRunCycle_TickerFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.market.err = errors.New("exchange down")

	assert.Error(t, f.scanner.RunCycle(context.Background()))
	assert.Empty(t, f.market.fetched)
	assert.Zero(t, f.state.Stats().Cycles)
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.scanner.RunCycle(ctx), context.Canceled)
	assert.Empty(t, f.market.fetched)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 6)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() { f.scanner.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool { return f.state.Stats().Cycles >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestState_CooldownPrune(t *testing.T) {
	s := NewState(2)
	s.RecordSignal(strategy.Signal{Symbol: "OLD", Timestamp: t0})
	s.RecordSignal(strategy.Signal{Symbol: "NEW", Timestamp: t0.Add(2 * time.Hour)})
	s.RecordSignal(strategy.Signal{Symbol: "NEWER", Timestamp: t0.Add(3 * time.Hour)})

	s.PruneCooldowns(t0.Add(time.Hour))
	_, ok := s.LastSignal("OLD")
	assert.False(t, ok)
	_, ok = s.LastSignal("NEW")
	assert.True(t, ok)

	recent := s.RecentSignals()
	require.Len(t, recent, 2)
	assert.Equal(t, "NEW", recent[0].Symbol)
}
