package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"gainer-scanner/config"
	"gainer-scanner/internal/api"
	"gainer-scanner/internal/bus"
	"gainer-scanner/internal/execution"
	"gainer-scanner/internal/gateway"
	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/logger"
	"gainer-scanner/internal/marketdata/binance"
	"gainer-scanner/internal/metrics"
	"gainer-scanner/internal/notification"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/report"
	"gainer-scanner/internal/scanner"
	"gainer-scanner/internal/store/redis"
	"gainer-scanner/internal/store/signallog"
	"gainer-scanner/internal/store/sqlite"
	"gainer-scanner/internal/strategy"
)

const (
	eventBuffer     = 256
	shutdownTimeout = 10 * time.Second
)

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init("gainer-scanner", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[main] starting version=%s strategy=%s", version, cfg.Strategy.Version)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.Scanner.CycleDelay)
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, reg, health)
	}

	// ---- Context for graceful shutdown ----
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	// ---- Market data ----
	client := binance.New(cfg.Binance)
	client.OnFailure = func(endpoint string, err error) {
		prom.FetchErrors.WithLabelValues(endpoint).Inc()
	}
	client.OnSuccess = func(string) { health.SetLastFetchOK(time.Now()) }
	prom.TrackBreaker("binance", client.Breaker())

	// ---- Sinks ----
	var signalLog *signallog.Writer
	if cfg.SignalLogPath != "" {
		if signalLog, err = signallog.Open(cfg.SignalLogPath); err != nil {
			return err
		}
		defer signalLog.Close()
		log.Printf("[main] signal log %s", signalLog.Path())
	}

	var journal *sqlite.Journal
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
		if journal, err = sqlite.Open(sqlite.Config{DBPath: cfg.JournalPath}); err != nil {
			return err
		}
		defer journal.Close()
		journal.OnCommit = func(d time.Duration) { prom.JournalCommitDur.Observe(d.Seconds()) }
	}

	var publisher *redis.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Printf("[main] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer publisher.Close()
			publisher.OnBuffer = prom.RedisBufferedWrites.Inc
			prom.TrackBreaker("redis", publisher.Breaker())
		}
	}

	var pinger metrics.Pinger
	if publisher != nil {
		pinger = publisher
	}
	if journal != nil || pinger != nil {
		if journal != nil {
			health.CheckSQLite(runCtx, journal.DB())
			health.StartLivenessChecker(runCtx, pinger, journal.DB(), 10*time.Second)
		} else {
			health.StartLivenessChecker(runCtx, pinger, nil, 10*time.Second)
		}
	}

	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	dispatcher := notification.NewDispatcher(notifiers...)

	// ---- Event fan-out ----
	events := make(chan portfolio.Event, eventBuffer)
	fanout := bus.New[portfolio.Event](eventBuffer)
	fanout.OnDrop = func(subscriber string) {
		prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}

	var sinks sync.WaitGroup
	startSink := func(name string, run func(context.Context, <-chan portfolio.Event)) {
		ch := fanout.Subscribe(name)
		sinks.Add(1)
		go func() {
			defer sinks.Done()
			run(sinkCtx, ch)
		}()
	}
	startSink("metrics", prom.Run)
	startSink("notify", dispatcher.Run)
	if journal != nil {
		startSink("journal", journal.Run)
	}
	if publisher != nil {
		startSink("redis", publisher.Run)
	}
	var hub *gateway.Hub
	if metricsSrv != nil {
		hub = gateway.NewHub()
		hub.OnDrop = prom.FanoutDropsTotal.WithLabelValues("ws_client").Inc
		startSink("ws", hub.Run)
	}
	go fanout.Run(sinkCtx, events)

	// ---- Core ----
	ledger := portfolio.NewLedger(cfg.Strategy.FirstTargetExit)
	state := scanner.NewState(cfg.RecentSignals)
	filter := strategy.NewFilter(cfg.Strategy.Filter, cfg.Strategy.Risk, ledger, state, client, cfg.Strategy.Version)

	deps := scanner.Deps{
		MarketData: client,
		Calculator: indicator.NewCalculator(cfg.Strategy.Indicators),
		Thresholds: cfg.Strategy.Thresholds,
		Weights:    cfg.Strategy.Weights,
		Filter:     filter,
		Ledger:     ledger,
		State:      state,
		Events:     events,
		Metrics:    prom,
		Health:     health,
	}
	if signalLog != nil {
		deps.SignalLog = signalLog
	}
	scan := scanner.New(cfg.Scanner, deps)
	scan.OnSignal = func(ctx context.Context, sig strategy.Signal) {
		if hub != nil {
			hub.PublishSignal(sig)
		}
		if publisher != nil {
			if err := publisher.PublishSignal(ctx, sig); err != nil {
				log.Printf("[main] redis signal %s: %v", sig.Symbol, err)
			}
		}
	}
	monitor := execution.NewMonitor(cfg.MonitorInterval, client, ledger, events, health)

	if metricsSrv != nil {
		metricsSrv.Handle("/api/", api.NewRouter(api.Deps{
			Positions: ledger,
			Scan:      state,
			Closer:    monitor,
			Version:   version,
		}))
		metricsSrv.Handle("/api/v1/ws", hub)
		go hub.RunScanUpdates(runCtx, state, time.Second)
		metricsSrv.Start()
	}

	dispatcher.Started(runCtx, version, cfg.Strategy.Filter.MaxPositions)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() { defer loops.Done(); scan.Run(runCtx) }()
	go func() { defer loops.Done(); monitor.Run(runCtx) }()

	<-runCtx.Done()
	log.Println("[main] shutdown signal received, finishing current work...")
	loops.Wait()

	// the API can close positions, so it must stop before the bus input closes
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Stop(ctx)
		cancel()
	}

	if cfg.CloseOnExit {
		closeCtx, cancel := context.WithTimeout(sinkCtx, shutdownTimeout)
		n := monitor.CloseAll(closeCtx)
		cancel()
		log.Printf("[main] closed %d open positions", n)
	}

	// closing the input drains the bus and then every sink
	close(events)
	drained := make(chan struct{})
	go func() { sinks.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(shutdownTimeout):
		log.Println("[main] sinks did not drain in time")
		cancelSinks()
	}

	stats := ledger.Stats()
	dispatcher.Stopped(stats, ledger.ActiveCount())
	report.Stats(os.Stdout, stats)
	report.Positions(os.Stdout, ledger.Active())
	log.Println("[main] stopped")
	return nil
}
