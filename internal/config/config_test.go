package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, []string{"5m", "15m", "1h"}, cfg.Timeframes)
	assert.Equal(t, "15m", cfg.Primary)
	assert.Equal(t, 200, cfg.BarWindow)
	assert.Equal(t, 14, cfg.Quantum.ATRPeriod)
	assert.Equal(t, time.Minute, cfg.EvalInterval)
	assert.Equal(t, 15*time.Second, cfg.MonitorInterval)
	assert.True(t, cfg.Position.RiskPerTrade.Equal(decimal.NewFromFloat(0.02)))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "BTCUSDT, ETHUSDT ,SOLUSDT")
	t.Setenv("TIMEFRAMES", "1m,5m")
	t.Setenv("PRIMARY_TIMEFRAME", "5m")
	t.Setenv("ATR_PERIOD", "21")
	t.Setenv("RISK_PER_TRADE_PCT", "0.01")
	t.Setenv("EVAL_INTERVAL", "30s")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234567890")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, cfg.Symbols)
	assert.Equal(t, "5m", cfg.Primary)
	assert.Equal(t, 21, cfg.Quantum.ATRPeriod)
	assert.True(t, cfg.Position.RiskPerTrade.Equal(decimal.NewFromFloat(0.01)))
	assert.Equal(t, 30*time.Second, cfg.EvalInterval)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, int64(-1001234567890), cfg.TelegramChatID)
}

func TestLoadRejectsPrimaryOutsideTimeframes(t *testing.T) {
	t.Setenv("TIMEFRAMES", "5m,15m")
	t.Setenv("PRIMARY_TIMEFRAME", "4h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIMARY_TIMEFRAME")
}

func TestLoadRejectsShortBarWindow(t *testing.T) {
	t.Setenv("BAR_WINDOW", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAR_WINDOW")
}

func TestLoadRejectsBadEngineConfig(t *testing.T) {
	// Enter level must stay above the exit level.
	t.Setenv("ENTER_LEVEL", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a, b,"))
	assert.Empty(t, splitList(" , "))
}
