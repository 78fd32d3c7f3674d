package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
engine:
  symbols: [BTC/USDT, SOL/USDT]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC/USDT", "SOL/USDT"}, cfg.Engine.Symbols)
	assert.Equal(t, "1h", cfg.Engine.Timeframe)
	assert.Equal(t, 3, cfg.Engine.MinAgreement)
	assert.Equal(t, 60.0, cfg.Engine.MinConfidence)
	assert.Equal(t, 30, cfg.Engine.TickIntervalSeconds)
	assert.True(t, cfg.Engine.RunImmediately)
	assert.Equal(t, 2.0, cfg.Position.ATRMultiplier)
	assert.Equal(t, []float64{0.5, 0.75}, cfg.Position.PartialFractions)
	assert.Equal(t, 3, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, 5.0, cfg.Risk.MaxDailyLossPct)
	assert.False(t, cfg.Risk.Throttle.Enabled)
	assert.True(t, cfg.Store.Enabled)
	assert.Len(t, cfg.Indicators, 5)
	assert.Equal(t, "https://fapi.binance.com", cfg.Market.RESTBaseURL)
}

func TestLoadGateMarketDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
market:
  name: Gate
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gate", cfg.Market.Name)
	assert.Equal(t, "https://api.gateio.ws/api/v4", cfg.Market.RESTBaseURL)

	bad := writeFile(t, t.TempDir(), "quorum.yaml", "market:\n  name: kraken\n")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "market.name")
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
engine:
  run_immediately: false
  min_agreement: 2
store:
  enabled: false
risk:
  max_daily_loss_pct: 0
indicators:
  - name: RSI
    weight: 2
    params: {period: 7}
  - name: macd
    weight: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Engine.RunImmediately)
	assert.Equal(t, 2, cfg.Engine.MinAgreement)
	assert.False(t, cfg.Store.Enabled)
	assert.Zero(t, cfg.Risk.MaxDailyLossPct, "explicit zero disables the breaker")
	require.Len(t, cfg.Indicators, 2)
	assert.Equal(t, "rsi", cfg.Indicators[0].Name)
	assert.Equal(t, 7.0, cfg.Indicators[0].Params["period"])
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
risk:
  max_concurrent_positions: 5
engine:
  timeframe: 4h
`)
	path := writeFile(t, dir, "quorum.yaml", `
include: [base.yaml]
engine:
  timeframe: 15m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, "15m", cfg.Engine.Timeframe)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "cycle")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QUORUM_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("QUORUM_TELEGRAM_CHAT_ID", "42")
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
notify:
  telegram:
    enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "***", cfg.Redacted().Notify.Telegram.BotToken)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"timeframe":      "engine:\n  timeframe: hourly\n",
		"agreement":      "engine:\n  min_agreement: 0\n",
		"fractions":      "position:\n  partial_fractions: [0.8, 0.5]\n",
		"hours":          "risk:\n  trading_hours: {start: \"25:00\", end: \"02:00\"}\n",
		"timezone":       "app:\n  timezone: Mars/Olympus\n",
		"telegram":       "notify:\n  telegram: {enabled: true}\n",
		"muted":          "indicators:\n  - {name: rsi, weight: 0}\n",
		"fetch timeout":  "engine:\n  tick_interval_seconds: 5\n  fetch_timeout_seconds: 5\n",
		"market":         "market:\n  name: kraken\n",
		"notify events":  "notify:\n  events: [EXPLODED]\n",
		"throttle range": "risk:\n  throttle: {enabled: true, probability: 2}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "quorum.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
	loc, err := cfg.App.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestIsValidInterval(t *testing.T) {
	for _, ok := range []string{"1m", "15m", "4h", "1d", "1w"} {
		assert.True(t, IsValidInterval(ok), ok)
	}
	for _, bad := range []string{"", "h", "1y", "x1h"} {
		assert.False(t, IsValidInterval(bad), bad)
	}
}
