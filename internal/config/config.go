// Package config loads per-process configuration from the environment, per
// the table in SPEC_FULL.md §7. Every process calls Init once at startup and
// passes the resulting *Config explicitly into component constructors; no
// package below main reaches for config.Get() directly.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var global *Config

// Config is the global, per-process configuration.
type Config struct {
	// Store / fabric / cache connections
	DBURL     string
	BrokerURL string
	CacheURL  string

	// Strategy orchestrator
	MaxActiveStrategies int
	BacktestParallelism int
	BacktestWindowDays  int

	// Signal aggregator
	SignalUpdateInterval time.Duration

	// Risk gate
	DrawdownLimitNormalPct    float64
	DrawdownLimitProtectivePct float64
	MonthlyReturnTargetPct    float64
	MonthlyProfitTargetUSD    float64
	PortfolioTargetUSD        float64

	// Collector master switches
	OnchainCollectionEnabled bool
	SocialCollectionEnabled  bool
	MarketCollectionEnabled  bool
	MacroCollectionEnabled   bool
	ExchangeCollectionEnabled bool

	// Collector credentials (empty means that collector self-disables)
	MoralisAPIKey   string
	GlassnodeAPIKey string
	TwitterBearer   string
	RedditClientID  string
	LunarCrushKey   string
	FREDAPIKey      string

	// Alert channels
	SMTPAddr       string
	TelegramToken  string
	TelegramChatID string
	SlackWebhook   string

	// Control API
	APIServerPort int
	JWTSecret     string
	RateLimitRPM  int

	// Live-environment exchange adaptor (empty credentials disable live
	// order placement; the executor then only processes paper orders)
	BybitAPIKey    string
	BybitSecretKey string

	Environment string // "paper" or "live"
}

// Init loads configuration from the process environment, filling in the
// documented defaults for anything unset.
func Init() *Config {
	cfg := &Config{
		DBURL:     getEnv("DB_URL", "sqlite://data/mastertrade.db"),
		BrokerURL: os.Getenv("BROKER_URL"), // empty => in-process fabric
		CacheURL:  os.Getenv("CACHE_URL"),  // empty => in-process cache

		MaxActiveStrategies: getEnvInt("MAX_ACTIVE_STRATEGIES", 5),
		BacktestParallelism: getEnvInt("BACKTEST_PARALLELISM", defaultParallelism()),
		BacktestWindowDays:  getEnvInt("BACKTEST_WINDOW_DAYS", 90),

		SignalUpdateInterval: time.Duration(getEnvInt("SIGNAL_UPDATE_INTERVAL_SECONDS", 60)) * time.Second,

		DrawdownLimitNormalPct:     getEnvFloat("DRAWDOWN_LIMIT_NORMAL_PCT", 0.05),
		DrawdownLimitProtectivePct: getEnvFloat("DRAWDOWN_LIMIT_PROTECTIVE_PCT", 0.02),
		MonthlyReturnTargetPct:     getEnvFloat("MONTHLY_RETURN_TARGET_PCT", 10.0),
		MonthlyProfitTargetUSD:     getEnvFloat("MONTHLY_PROFIT_TARGET_USD", 5000.0),
		PortfolioTargetUSD:         getEnvFloat("PORTFOLIO_TARGET_USD", 1_000_000.0),

		OnchainCollectionEnabled:  getEnvBool("ONCHAIN_COLLECTION_ENABLED", true),
		SocialCollectionEnabled:   getEnvBool("SOCIAL_COLLECTION_ENABLED", true),
		MarketCollectionEnabled:   getEnvBool("MARKET_COLLECTION_ENABLED", true),
		MacroCollectionEnabled:    getEnvBool("MACRO_COLLECTION_ENABLED", true),
		ExchangeCollectionEnabled: getEnvBool("EXCHANGE_COLLECTION_ENABLED", true),

		MoralisAPIKey:   os.Getenv("MORALIS_API_KEY"),
		GlassnodeAPIKey: os.Getenv("GLASSNODE_API_KEY"),
		TwitterBearer:   os.Getenv("TWITTER_BEARER_TOKEN"),
		RedditClientID:  os.Getenv("REDDIT_CLIENT_ID"),
		LunarCrushKey:   os.Getenv("LUNARCRUSH_API_KEY"),
		FREDAPIKey:      os.Getenv("FRED_API_KEY"),

		SMTPAddr:       os.Getenv("SMTP_ADDR"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
		SlackWebhook:   os.Getenv("SLACK_WEBHOOK_URL"),

		APIServerPort: getEnvInt("API_SERVER_PORT", 8080),
		JWTSecret:     getEnv("JWT_SECRET", "default-jwt-secret-change-in-production"),
		RateLimitRPM:  getEnvInt("API_RATE_LIMIT_RPM", 60),

		BybitAPIKey:    os.Getenv("BYBIT_API_KEY"),
		BybitSecretKey: os.Getenv("BYBIT_SECRET_KEY"),

		Environment: strings.ToLower(getEnv("TRADING_ENVIRONMENT", "paper")),
	}

	global = cfg
	return cfg
}

// Get returns the process-wide configuration, initializing it from the
// environment on first access.
func Get() *Config {
	if global == nil {
		return Init()
	}
	return global
}

func defaultParallelism() int {
	// Mirrors the spec's min(cpu_count, 8) default.
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if v := os.Getenv("NUM_CPU_HINT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed < n {
			n = parsed
		}
	}
	return n
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true"
	}
	return def
}
