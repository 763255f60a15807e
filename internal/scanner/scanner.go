package scanner

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/logger"
	"gainer-scanner/internal/metrics"
	"gainer-scanner/internal/model"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/strategy"
)

// Signal times older than this are forgotten; it must exceed any
// configured cooldown.
const cooldownRetention = 24 * time.Hour

// MarketData is the part of the exchange client the scan loop reads.
type MarketData interface {
	// FetchTickerSnapshot returns the gainers to scan, best first.
	FetchTickerSnapshot(ctx context.Context) ([]model.Ticker, error)
	FetchCandles(ctx context.Context, symbol string, intervals []model.Interval) model.CandleSet
}

// Ledger is the part of the position ledger the scan loop writes.
type Ledger interface {
	Open(e portfolio.Entry) (portfolio.Event, error)
	IsActive(symbol string) bool
}

// SignalLog persists accepted signals.
type SignalLog interface {
	Append(sig strategy.Signal) error
}

// Config holds the scan loop cadence. Gainer selection belongs to the
// market data source.
type Config struct {
	SymbolDelay time.Duration // pause between symbols
	CycleDelay  time.Duration // pause between cycles
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{
		SymbolDelay: 200 * time.Millisecond,
		CycleDelay:  12 * time.Second,
	}
}

// Scanner runs scan cycles. Optional collaborators may be nil.
type Scanner struct {
	cfg        Config
	md         MarketData
	calc       *indicator.Calculator
	thresholds strategy.Thresholds
	weights    strategy.Weights
	filter     *strategy.Filter
	ledger     Ledger
	state      *State

	signals SignalLog
	events  chan<- portfolio.Event
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	// OnSignal, if set, is called after a signal opened a position.
	OnSignal func(ctx context.Context, sig strategy.Signal)

	now func() time.Time
}

// Deps groups the collaborators of a Scanner.
type Deps struct {
	MarketData MarketData
	Calculator *indicator.Calculator
	Thresholds strategy.Thresholds
	Weights    strategy.Weights
	Filter     *strategy.Filter
	Ledger     Ledger
	State      *State

	SignalLog SignalLog
	Events    chan<- portfolio.Event
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
}

// New creates a scanner.
func New(cfg Config, d Deps) *Scanner {
	return &Scanner{
		cfg:        cfg,
		md:         d.MarketData,
		calc:       d.Calculator,
		thresholds: d.Thresholds,
		weights:    d.Weights,
		filter:     d.Filter,
		ledger:     d.Ledger,
		state:      d.State,
		signals:    d.SignalLog,
		events:     d.Events,
		metrics:    d.Metrics,
		health:     d.Health,
		now:        time.Now,
	}
}

// Run scans until ctx is cancelled. A cancelled scan returns after the
// symbol in progress.
func (s *Scanner) Run(ctx context.Context) {
	log.Printf("[scanner] started (cycle delay %s, symbol delay %s)", s.cfg.CycleDelay, s.cfg.SymbolDelay)
	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[scanner] cycle failed: %v", err)
		}
		if !sleep(ctx, s.cfg.CycleDelay) {
			log.Printf("[scanner] stopped")
			return
		}
	}
}

// RunCycle performs one full pass over the gainer list.
func (s *Scanner) RunCycle(ctx context.Context) error {
	start := s.now()
	cycle := s.state.BeginCycle()
	ctx = logger.WithCycle(ctx, cycle)

	gainers, err := s.md.FetchTickerSnapshot(ctx)
	if err != nil {
		return err
	}
	if purged := s.state.SetGainers(gainers); len(purged) > 0 {
		slog.Debug("purged stale evaluations", append(logger.Attrs(ctx), "symbols", purged)...)
	}
	s.state.PruneCooldowns(start.Add(-cooldownRetention))
	if s.metrics != nil {
		s.metrics.GainersTracked.Set(float64(len(gainers)))
	}

	scanned, signals := 0, 0
	for _, g := range gainers {
		if ctx.Err() != nil {
			break
		}
		if s.ledger.IsActive(g.Symbol) {
			continue
		}
		if scanned > 0 && !sleep(ctx, s.cfg.SymbolDelay) {
			break
		}
		scanned++
		if s.scanSymbol(ctx, cycle, g) {
			signals++
		}
	}

	took := s.now().Sub(start)
	s.state.EndCycle(s.now(), took)
	if s.metrics != nil {
		s.metrics.ScanCycles.Inc()
		s.metrics.ScanDuration.Observe(took.Seconds())
	}
	if s.health != nil {
		s.health.SetLastScanTime(s.now())
	}
	slog.Info("scan cycle complete", append(logger.Attrs(ctx),
		"gainers", len(gainers), "scanned", scanned, "signals", signals, "took", took.Round(time.Millisecond).String())...)
	return ctx.Err()
}

// scanSymbol evaluates one gainer and reports whether it opened a position.
func (s *Scanner) scanSymbol(ctx context.Context, cycle int64, t model.Ticker) bool {
	sym := t.Symbol
	ctx = logger.WithSymbol(ctx, sym)
	s.state.SetCurrent(sym)

	set := s.md.FetchCandles(ctx, sym, s.calc.Params().Timeframes.All())
	snap, err := s.calc.Calculate(sym, set, s.now())
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) && s.metrics != nil {
			s.metrics.InsufficientData.Inc()
		}
		slog.Debug("symbol skipped", append(logger.Attrs(ctx), "err", err)...)
		return false
	}
	if s.metrics != nil {
		s.metrics.SymbolsScanned.Inc()
		for _, f := range snap.Fallbacks {
			s.metrics.IndicatorFallbacks.WithLabelValues(f).Inc()
		}
	}

	conds := strategy.Evaluate(snap, s.thresholds, s.weights)
	s.state.Store(sym, Evaluation{Cycle: cycle, Coin: t.Coin, Snapshot: snap, Conditions: conds})

	dec := s.filter.Evaluate(ctx, t.Coin, snap, conds)
	s.state.SetReason(sym, cycle, dec.Reason, dec.Imbalance)
	if !dec.Accepted() {
		if s.metrics != nil {
			s.metrics.RejectionsTotal.WithLabelValues(string(dec.Reason)).Inc()
		}
		if dec.Reason != strategy.RejectCoreConditions {
			slog.Debug("candidate rejected", append(logger.Attrs(ctx),
				"reason", dec.Reason, "core", conds.CoreMet(), "score", conds.Score)...)
		}
		return false
	}
	return s.accept(ctx, dec.Signal)
}

func (s *Scanner) accept(ctx context.Context, sig strategy.Signal) bool {
	ev, err := s.ledger.Open(sig.LedgerEntry())
	if err != nil {
		log.Printf("[scanner] %s: signal not opened: %v", sig.Symbol, err)
		if s.metrics != nil {
			s.metrics.RejectionsTotal.WithLabelValues(string(strategy.RejectInvalid)).Inc()
		}
		return false
	}

	if s.signals != nil {
		if err := s.signals.Append(sig); err != nil {
			log.Printf("[scanner] %s: signal log: %v", sig.Symbol, err)
		}
	}
	s.state.RecordSignal(sig)
	s.publish(ctx, ev)

	if s.metrics != nil {
		s.metrics.SignalsTotal.Inc()
	}
	slog.Info("signal", append(logger.Attrs(ctx),
		"level", sig.EntryLevel, "confidence", sig.Confidence, "score", sig.Score,
		"entry", sig.Entry, "stop", sig.StopLoss, "tp1", sig.TP1, "tp2", sig.TP2)...)

	if s.OnSignal != nil {
		s.OnSignal(ctx, sig)
	}
	return true
}

func (s *Scanner) publish(ctx context.Context, ev portfolio.Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
		log.Printf("[scanner] %s: %s event not published, shutting down", ev.Symbol, ev.Kind)
	}
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
