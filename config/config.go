// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML strategy file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/marketdata/binance"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/scanner"
	"gainer-scanner/internal/strategy"
)

// Strategy holds every tunable of the signal pipeline. It is the shape
// of the YAML strategy file; fields absent from the file keep their
// defaults.
type Strategy struct {
	Version         string                `yaml:"version"`
	Indicators      indicator.Params      `yaml:"indicators"`
	Thresholds      strategy.Thresholds   `yaml:"thresholds"`
	Weights         strategy.Weights      `yaml:"weights"`
	Filter          strategy.FilterConfig `yaml:"filter"`
	Risk            portfolio.RiskLimits  `yaml:"risk"`
	FirstTargetExit float64               `yaml:"first_target_exit"`
}

// DefaultStrategy returns the production strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Version:         "v1",
		Indicators:      indicator.DefaultParams(),
		Thresholds:      strategy.DefaultThresholds(),
		Weights:         strategy.DefaultWeights(),
		Filter:          strategy.DefaultFilterConfig(),
		Risk:            portfolio.DefaultRiskLimits(),
		FirstTargetExit: 0.75,
	}
}

// Config holds all application configuration.
type Config struct {
	Binance         binance.Config
	Scanner         scanner.Config
	MonitorInterval time.Duration
	Strategy        Strategy
	StrategyFile    string
	RecentSignals   int
	CloseOnExit     bool

	// Persistence and sinks; empty disables
	SignalLogPath string
	JournalPath   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MetricsAddr   string

	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	LogLevel string
}

// Load reads .env (if present), the environment and the strategy file
// named by STRATEGY_FILE, in that order of precedence from lowest to
// highest: defaults, YAML, environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	cfg := &Config{
		Binance:         binance.DefaultConfig(),
		Scanner:         scanner.DefaultConfig(),
		MonitorInterval: 10 * time.Second,
		Strategy:        DefaultStrategy(),
		RecentSignals:   50,
		StrategyFile:    getEnv("STRATEGY_FILE", ""),
	}

	if cfg.StrategyFile != "" {
		if err := LoadStrategy(cfg.StrategyFile, &cfg.Strategy); err != nil {
			return nil, err
		}
		log.Printf("[config] strategy %s loaded from %s", cfg.Strategy.Version, cfg.StrategyFile)
	}

	e := &envReader{}
	b := &cfg.Binance
	b.BaseURL = getEnv("BINANCE_BASE_URL", b.BaseURL)
	b.QuoteAsset = getEnv("QUOTE_ASSET", b.QuoteAsset)
	b.TopN = e.getInt("TOP_N", b.TopN)
	b.CandleLimit = e.getInt("CANDLE_LIMIT", b.CandleLimit)
	b.DepthLimit = e.getInt("DEPTH_LIMIT", b.DepthLimit)
	b.Timeout = e.millis("HTTP_TIMEOUT_MS", b.Timeout)
	b.RetryAttempts = e.getInt("RETRY_ATTEMPTS", b.RetryAttempts)
	b.RetryDelay = e.millis("RETRY_DELAY_MS", b.RetryDelay)

	sc := &cfg.Scanner
	sc.CycleDelay = e.seconds("SCAN_INTERVAL_SEC", sc.CycleDelay)
	sc.SymbolDelay = e.millis("SYMBOL_DELAY_MS", sc.SymbolDelay)
	cfg.MonitorInterval = e.seconds("MONITOR_INTERVAL_SEC", cfg.MonitorInterval)

	f := &cfg.Strategy.Filter
	f.Cooldown = e.seconds("COOLDOWN_SEC", f.Cooldown)
	f.MaxPositions = e.getInt("MAX_POSITIONS", f.MaxPositions)
	f.MinImbalance = e.getFloat("MIN_IMBALANCE", f.MinImbalance)
	f.MinCoreConditions = e.getInt("MIN_CORE_CONDITIONS", f.MinCoreConditions)

	r := &cfg.Strategy.Risk
	r.MinStopPct = e.getFloat("MIN_STOP_PCT", r.MinStopPct)
	r.MaxStopPct = e.getFloat("MAX_STOP_PCT", r.MaxStopPct)
	r.MinRewardRisk = e.getFloat("MIN_REWARD_RISK", r.MinRewardRisk)

	cfg.RecentSignals = e.getInt("RECENT_SIGNALS", cfg.RecentSignals)
	cfg.CloseOnExit = e.getBool("CLOSE_ON_EXIT", false)

	cfg.SignalLogPath = getEnv("SIGNAL_LOG_PATH", "data/signals.jsonl")
	cfg.JournalPath = getEnv("JOURNAL_PATH", "data/journal.db")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = e.getInt("REDIS_DB", 0)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	cfg.WebhookURL = getEnv("WEBHOOK_URL", "")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if err := e.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStrategy overlays the YAML file at path onto s.
func LoadStrategy(path string, s *Strategy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: strategy file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("config: strategy file %s: %w", path, err)
	}
	return nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	s := c.Strategy
	if err := s.Risk.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch {
	case !(s.FirstTargetExit > 0 && s.FirstTargetExit < 1):
		return fmt.Errorf("config: first_target_exit must be in (0,1), got %v", s.FirstTargetExit)
	case c.Scanner.CycleDelay <= 0 || c.MonitorInterval <= 0:
		return fmt.Errorf("config: scan and monitor intervals must be positive")
	case c.Scanner.SymbolDelay < 0:
		return fmt.Errorf("config: symbol delay must not be negative")
	case c.Binance.TopN <= 0:
		return fmt.Errorf("config: TOP_N must be positive, got %d", c.Binance.TopN)
	case c.Binance.CandleLimit < s.Indicators.MinBars:
		return fmt.Errorf("config: CANDLE_LIMIT %d below the %d bars indicators need", c.Binance.CandleLimit, s.Indicators.MinBars)
	case c.Binance.Timeout <= 0 || c.Binance.RetryAttempts < 1:
		return fmt.Errorf("config: HTTP timeout and retry attempts must be positive")
	case s.Filter.MaxPositions < 1:
		return fmt.Errorf("config: MAX_POSITIONS must be at least 1")
	case s.Filter.MinCoreConditions < 0 || s.Filter.MinCoreConditions > len(strategy.CoreConditions):
		return fmt.Errorf("config: MIN_CORE_CONDITIONS must be in [0,%d]", len(strategy.CoreConditions))
	case s.Filter.Cooldown < 0:
		return fmt.Errorf("config: cooldown must not be negative")
	case s.Filter.Level2Score > s.Filter.Level3Score:
		return fmt.Errorf("config: level2_score must not exceed level3_score")
	case s.Indicators.MinBars < 1:
		return fmt.Errorf("config: min_bars must be positive")
	case (c.TelegramBotToken == "") != (c.TelegramChatID == ""):
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// envReader parses typed variables and keeps the first parse error.
type envReader struct {
	first error
}

func (e *envReader) fail(key, v string, err error) {
	if e.first == nil {
		e.first = fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
}

func (e *envReader) err() error { return e.first }

func (e *envReader) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return f
}

func (e *envReader) getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

func (e *envReader) millis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return time.Duration(e.getInt(key, 0)) * time.Millisecond
}

func (e *envReader) seconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return time.Duration(e.getFloat(key, 0) * float64(time.Second))
}
