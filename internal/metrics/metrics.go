package metrics

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"gainer-scanner/internal/breaker"
	"gainer-scanner/internal/portfolio"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	// Scan loop
	ScanCycles     prometheus.Counter
	SymbolsScanned prometheus.Counter
	ScanDuration   prometheus.Histogram
	GainersTracked prometheus.Gauge

	// Strategy
	SignalsTotal       prometheus.Counter
	RejectionsTotal    *prometheus.CounterVec // labels: reason
	IndicatorFallbacks *prometheus.CounterVec // labels: field
	InsufficientData   prometheus.Counter

	// Market data
	FetchErrors *prometheus.CounterVec // labels: endpoint

	// Positions
	ActivePositions     prometheus.Gauge
	PositionTransitions *prometheus.CounterVec // labels: status
	RealizedPnLPct      prometheus.Gauge
	WinRatePct          prometheus.Gauge
	ClosedTrades        prometheus.Gauge

	// Sinks
	FanoutDropsTotal    *prometheus.CounterVec // labels: subscriber
	JournalCommitDur    prometheus.Histogram
	RedisBufferedWrites prometheus.Counter

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: breaker
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_cycles_total",
			Help: "Completed scan cycles",
		}),
		SymbolsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_symbols_scanned_total",
			Help: "Symbols evaluated across all cycles",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_cycle_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120},
		}),
		GainersTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_gainers",
			Help: "Symbols in the current gainer list",
		}),

		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_signals_total",
			Help: "Accepted entry signals",
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_rejections_total",
			Help: "Candidates rejected by the entry filter",
		}, []string{"reason"}),
		IndicatorFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_indicator_fallbacks_total",
			Help: "Indicator fields replaced by their fallback value",
		}, []string{"field"}),
		InsufficientData: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_insufficient_data_total",
			Help: "Symbols skipped for missing or short candle series",
		}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_fetch_errors_total",
			Help: "Market data requests that failed after retries",
		}, []string{"endpoint"}),

		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_active_positions",
			Help: "Open simulated positions",
		}),
		PositionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_position_transitions_total",
			Help: "Position state changes by target state",
		}, []string{"status"}),
		RealizedPnLPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_realized_pnl_pct",
			Help: "Cumulative realized P&L of closed trades, percent",
		}),
		WinRatePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_win_rate_pct",
			Help: "Win rate of closed trades, percent",
		}),
		ClosedTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_closed_trades",
			Help: "Closed trades this session",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_fanout_drops_total",
			Help: "Events dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		JournalCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_journal_commit_duration_seconds",
			Help:    "SQLite journal batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis breaker was open",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanner_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),
	}

	reg.MustRegister(
		m.ScanCycles,
		m.SymbolsScanned,
		m.ScanDuration,
		m.GainersTracked,
		m.SignalsTotal,
		m.RejectionsTotal,
		m.IndicatorFallbacks,
		m.InsufficientData,
		m.FetchErrors,
		m.ActivePositions,
		m.PositionTransitions,
		m.RealizedPnLPct,
		m.WinRatePct,
		m.ClosedTrades,
		m.FanoutDropsTotal,
		m.JournalCommitDur,
		m.RedisBufferedWrites,
		m.BreakerState,
		m.BreakerTrips,
	)

	return m
}

// TrackBreaker mirrors b's transitions into the breaker metrics, keeping
// any callback already installed.
func (m *Metrics) TrackBreaker(name string, b *breaker.Breaker) {
	m.BreakerState.WithLabelValues(name).Set(float64(b.State()))
	prev := b.OnStateChange
	b.OnStateChange = func(from, to breaker.State) {
		if prev != nil {
			prev(from, to)
		}
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.Open {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
}

// ObserveEvent updates position metrics from one ledger event.
func (m *Metrics) ObserveEvent(ev portfolio.Event) {
	m.PositionTransitions.WithLabelValues(string(ev.To)).Inc()
	switch ev.Kind {
	case portfolio.EventOpened:
		m.ActivePositions.Inc()
	case portfolio.EventClosed:
		m.ActivePositions.Dec()
	}
	if ev.Stats != nil {
		m.RealizedPnLPct.Set(ev.Stats.TotalPnLPct)
		m.WinRatePct.Set(ev.Stats.WinRatePct)
		m.ClosedTrades.Set(float64(ev.Stats.TotalTrades))
	}
}

// Run records ledger events until ctx is cancelled or events is closed.
func (m *Metrics) Run(ctx context.Context, events <-chan portfolio.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("[metrics] event stream closed")
				return
			}
			m.ObserveEvent(ev)
		}
	}
}
