package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/position"
	"github.com/web3guy0/quantbot/internal/quantum"
)

// Config holds all runtime configuration. Malformed values are fatal at
// startup; nothing is silently clamped.
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Universe
	Symbols    []string
	Timeframes []string // intervals fed to the consensus aggregator
	Primary    string   // interval driving position management
	BarWindow  int      // bars fetched per evaluation

	// Engine
	Quantum quantum.Config

	// Risk
	Position position.Config

	// Scheduling
	EvalInterval    time.Duration
	MonitorInterval time.Duration
	CallTimeout     time.Duration // bound on any single external call

	// Validator (optional)
	ValidatorURL    string
	ValidatorAPIKey string
	ValidatorModel  string

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Persistence & observability
	DatabasePath string
	MetricsAddr  string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		Symbols:    splitList(getEnv("SYMBOLS", "BTCUSDT")),
		Timeframes: splitList(getEnv("TIMEFRAMES", "5m,15m,1h")),
		Primary:    getEnv("PRIMARY_TIMEFRAME", "15m"),
		BarWindow:  getEnvInt("BAR_WINDOW", 200),

		Quantum: quantum.Config{
			ATRPeriod:  getEnvInt("ATR_PERIOD", 14),
			EMAPeriod:  getEnvInt("EMA_PERIOD", 9),
			HFactor:    getEnvFloat("H_FACTOR", 0.6),
			BandK:      getEnvFloat("BAND_K", 1.5),
			Lookback:   getEnvInt("DIVERGENCE_LOOKBACK", 5),
			EnterLevel: getEnvInt("ENTER_LEVEL", 2),
			ExitLevel:  getEnvInt("EXIT_LEVEL", 0),
		},

		Position: position.Config{
			ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 70),
			RiskPerTrade:        getEnvDecimal("RISK_PER_TRADE_PCT", decimal.NewFromFloat(0.02)),
			SLATRMult:           getEnvFloat("SL_ATR_MULT", 2.0),
			TPMult:              getEnvFloat("TP_MULT", 2.0),
			TrailATRMult:        getEnvFloat("TRAIL_ATR_MULT", 1.5),
			TrailHMult:          getEnvFloat("TRAIL_H_MULT", 1.5),
			BreakevenPct:        getEnvFloat("BREAKEVEN_PCT", 0.01),
		},

		EvalInterval:    getEnvDuration("EVAL_INTERVAL", time.Minute),
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 15*time.Second),
		CallTimeout:     getEnvDuration("CALL_TIMEOUT", 10*time.Second),

		ValidatorURL:    os.Getenv("VALIDATOR_URL"),
		ValidatorAPIKey: os.Getenv("VALIDATOR_API_KEY"),
		ValidatorModel:  getEnv("VALIDATOR_MODEL", "gpt-4o-mini"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/quantbot.db"),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must not be empty")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("TIMEFRAMES must not be empty")
	}
	primaryListed := false
	for _, tf := range c.Timeframes {
		if tf == c.Primary {
			primaryListed = true
			break
		}
	}
	if !primaryListed {
		return fmt.Errorf("PRIMARY_TIMEFRAME %q must be one of TIMEFRAMES", c.Primary)
	}
	if c.BarWindow <= c.Quantum.Warmup() {
		return fmt.Errorf("BAR_WINDOW %d must exceed the warm-up of %d bars", c.BarWindow, c.Quantum.Warmup())
	}
	if err := c.Quantum.Validate(); err != nil {
		return err
	}
	if err := c.Position.Validate(); err != nil {
		return err
	}
	if c.EvalInterval <= 0 || c.MonitorInterval <= 0 || c.CallTimeout <= 0 {
		return fmt.Errorf("intervals and timeouts must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
