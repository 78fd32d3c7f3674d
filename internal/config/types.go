package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root of quorum.yaml.
type Config struct {
	App        AppConfig         `toml:"app" yaml:"app"`
	Market     MarketConfig      `toml:"market" yaml:"market"`
	Engine     EngineConfig      `toml:"engine" yaml:"engine"`
	Indicators []IndicatorConfig `toml:"indicators" yaml:"indicators"`
	Position   PositionConfig    `toml:"position" yaml:"position"`
	Risk       RiskConfig        `toml:"risk" yaml:"risk"`
	Store      StoreConfig       `toml:"store" yaml:"store"`
	Notify     NotifyConfig      `toml:"notify" yaml:"notify"`
}

type AppConfig struct {
	Env       string `toml:"env" yaml:"env"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
	LogPath   string `toml:"log_path" yaml:"log_path"`
	HTTPAddr  string `toml:"http_addr" yaml:"http_addr"`
	Timezone  string `toml:"timezone" yaml:"timezone"`

	// AllowedOrigins admits cross-origin browser clients to the live API.
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

// Location resolves app.timezone.
func (a AppConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(a.Timezone)
	if tz == "" || strings.EqualFold(tz, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("app.timezone %q: %w", tz, err)
	}
	return loc, nil
}

type MarketConfig struct {
	Name               string  `toml:"name" yaml:"name"`
	RESTBaseURL        string  `toml:"rest_base_url" yaml:"rest_base_url"`
	ProxyURL           string  `toml:"proxy_url" yaml:"proxy_url,omitempty"`
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	RequestsPerSecond  float64 `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst              int     `toml:"burst" yaml:"burst"`
}

type EngineConfig struct {
	Symbols                []string `toml:"symbols" yaml:"symbols"`
	Timeframe              string   `toml:"timeframe" yaml:"timeframe"`
	BarLimit               int      `toml:"bar_limit" yaml:"bar_limit"`
	ATRPeriod              int      `toml:"atr_period" yaml:"atr_period"`
	MinAgreement           int      `toml:"min_agreement" yaml:"min_agreement"`
	MinConfidence          float64  `toml:"min_confidence" yaml:"min_confidence"`
	TickIntervalSeconds    int      `toml:"tick_interval_seconds" yaml:"tick_interval_seconds"`
	RunImmediately         bool     `toml:"run_immediately" yaml:"run_immediately"`
	FetchTimeoutSeconds    int      `toml:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	MaxParallel            int      `toml:"max_parallel" yaml:"max_parallel"`
	BreakerThreshold       int      `toml:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldownSeconds int      `toml:"breaker_cooldown_seconds" yaml:"breaker_cooldown_seconds"`
}

func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalSeconds) * time.Second
}

func (e EngineConfig) FetchTimeout() time.Duration {
	return time.Duration(e.FetchTimeoutSeconds) * time.Second
}

type IndicatorConfig struct {
	Name   string             `toml:"name" yaml:"name"`
	Weight float64            `toml:"weight" yaml:"weight"`
	Params map[string]float64 `toml:"params" yaml:"params,omitempty"`
}

type PositionConfig struct {
	ATRMultiplier        float64   `toml:"atr_multiplier" yaml:"atr_multiplier"`
	TakeProfitMultiplier float64   `toml:"take_profit_multiplier" yaml:"take_profit_multiplier"`
	PartialFractions     []float64 `toml:"partial_fractions" yaml:"partial_fractions"`
	StakeUSD             float64   `toml:"stake_usd" yaml:"stake_usd"`
	PriceAlertPct        float64   `toml:"price_alert_pct" yaml:"price_alert_pct"`
	StopWarningFraction  float64   `toml:"stop_warning_fraction" yaml:"stop_warning_fraction"`
	MaxStopWarnings      int       `toml:"max_stop_warnings" yaml:"max_stop_warnings"`
	ArchiveLimit         int       `toml:"archive_limit" yaml:"archive_limit"`
}

type RiskConfig struct {
	MaxConcurrentPositions int                `toml:"max_concurrent_positions" yaml:"max_concurrent_positions"`
	MaxDailyLossPct        float64            `toml:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MinATRPct              float64            `toml:"min_atr_pct" yaml:"min_atr_pct"`
	MaxATRPct              float64            `toml:"max_atr_pct" yaml:"max_atr_pct"`
	TradingHours           TradingHoursConfig `toml:"trading_hours" yaml:"trading_hours"`
	Throttle               ThrottleConfig     `toml:"throttle" yaml:"throttle"`
}

// TradingHoursConfig is an optional "HH:MM" window in app.timezone.
type TradingHoursConfig struct {
	Start    string   `toml:"start" yaml:"start,omitempty"`
	End      string   `toml:"end" yaml:"end,omitempty"`
	Weekdays []string `toml:"weekdays" yaml:"weekdays,omitempty"`
}

type ThrottleConfig struct {
	Enabled      bool    `toml:"enabled" yaml:"enabled"`
	WinRateFloor float64 `toml:"win_rate_floor" yaml:"win_rate_floor"`
	Probability  float64 `toml:"probability" yaml:"probability"`
	Seed         uint64  `toml:"seed" yaml:"seed"`
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
	Events   []string       `toml:"events" yaml:"events,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	BotToken       string `toml:"bot_token" yaml:"bot_token"`
	ChatID         string `toml:"chat_id" yaml:"chat_id"`
	APIBaseURL     string `toml:"api_base_url" yaml:"api_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Notify.Telegram.BotToken != "" {
		out.Notify.Telegram.BotToken = "***"
	}
	return out
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
