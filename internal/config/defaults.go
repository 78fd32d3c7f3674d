package config

import (
	"strings"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9991"
	defaultAppTimezone      = "UTC"
	defaultMarketName       = "binance"
	defaultMarketREST       = "https://fapi.binance.com"
	defaultGateREST         = "https://api.gateio.ws/api/v4"
	defaultMarketTimeout    = 15
	defaultMarketRPS        = 10
	defaultMarketBurst      = 20
	defaultTimeframe        = "1h"
	defaultBarLimit         = 200
	defaultATRPeriod        = 14
	defaultMinAgreement     = 3
	defaultMinConfidence    = 60
	defaultTickInterval     = 30
	defaultFetchTimeout     = 10
	defaultMaxParallel      = 4
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 120
	defaultATRMultiplier    = 2
	defaultStakeUSD         = 100
	defaultPriceAlertPct    = 1
	defaultStopWarnFraction = 0.25
	defaultMaxStopWarnings  = 1
	defaultArchiveLimit     = 200
	defaultMaxConcurrent    = 3
	defaultMaxDailyLossPct  = 5
	defaultWinRateFloor     = 0.6
	defaultThrottleProb     = 0.5
	defaultThrottleSeed     = 1
	defaultStorePath        = "data/quorum.db"
	defaultTelegramAPI      = "https://api.telegram.org"
	defaultTelegramTimeout  = 10
)

var (
	defaultSymbols          = []string{"BTC/USDT", "ETH/USDT"}
	defaultPartialFractions = []float64{0.5, 0.75}
	defaultIndicators       = []string{"rsi", "macd", "bollinger", "ema_cross", "stoch"}
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(nil)
	return cfg
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Position.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	if len(c.Indicators) == 0 && !keys.isSet("indicators") {
		for _, name := range defaultIndicators {
			c.Indicators = append(c.Indicators, IndicatorConfig{Name: name, Weight: 1})
		}
	}
	for i := range c.Indicators {
		c.Indicators[i].Name = strings.ToLower(strings.TrimSpace(c.Indicators[i].Name))
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.timezone", &a.Timezone, defaultAppTimezone),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		fieldDefault{
			key:  "market.rest_base_url",
			need: func() bool { return strings.TrimSpace(m.RESTBaseURL) == "" },
			apply: func() {
				m.RESTBaseURL = defaultMarketREST
				if strings.EqualFold(strings.TrimSpace(m.Name), "gate") {
					m.RESTBaseURL = defaultGateREST
				}
			},
		},
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultMarketTimeout),
		fieldDefault{
			key:   "market.requests_per_second",
			need:  func() bool { return m.RequestsPerSecond <= 0 },
			apply: func() { m.RequestsPerSecond = defaultMarketRPS },
		},
		intFieldDefault("market.burst", &m.Burst, defaultMarketBurst),
	)
	m.Name = strings.ToLower(strings.TrimSpace(m.Name))
	m.RESTBaseURL = strings.TrimRight(strings.TrimSpace(m.RESTBaseURL), "/")
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.symbols",
			need:  func() bool { return len(e.Symbols) == 0 },
			apply: func() { e.Symbols = append([]string(nil), defaultSymbols...) },
		},
		stringFieldDefault("engine.timeframe", &e.Timeframe, defaultTimeframe),
		intFieldDefault("engine.bar_limit", &e.BarLimit, defaultBarLimit),
		intFieldDefault("engine.atr_period", &e.ATRPeriod, defaultATRPeriod),
		intFieldDefault("engine.min_agreement", &e.MinAgreement, defaultMinAgreement),
		fieldDefault{
			key:   "engine.min_confidence",
			need:  func() bool { return e.MinConfidence <= 0 },
			apply: func() { e.MinConfidence = defaultMinConfidence },
		},
		intFieldDefault("engine.tick_interval_seconds", &e.TickIntervalSeconds, defaultTickInterval),
		boolFieldDefault("engine.run_immediately", &e.RunImmediately, true),
		intFieldDefault("engine.fetch_timeout_seconds", &e.FetchTimeoutSeconds, defaultFetchTimeout),
		intFieldDefault("engine.max_parallel", &e.MaxParallel, defaultMaxParallel),
		intFieldDefault("engine.breaker_threshold", &e.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("engine.breaker_cooldown_seconds", &e.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
	e.Timeframe = strings.ToLower(strings.TrimSpace(e.Timeframe))
}

func (p *PositionConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "position.atr_multiplier",
			need:  func() bool { return p.ATRMultiplier <= 0 },
			apply: func() { p.ATRMultiplier = defaultATRMultiplier },
		},
		fieldDefault{
			key:   "position.partial_fractions",
			need:  func() bool { return len(p.PartialFractions) == 0 },
			apply: func() { p.PartialFractions = append([]float64(nil), defaultPartialFractions...) },
		},
		fieldDefault{
			key:   "position.stake_usd",
			need:  func() bool { return p.StakeUSD <= 0 },
			apply: func() { p.StakeUSD = defaultStakeUSD },
		},
		fieldDefault{
			key:   "position.price_alert_pct",
			need:  func() bool { return p.PriceAlertPct <= 0 },
			apply: func() { p.PriceAlertPct = defaultPriceAlertPct },
		},
		fieldDefault{
			key:   "position.stop_warning_fraction",
			need:  func() bool { return p.StopWarningFraction <= 0 },
			apply: func() { p.StopWarningFraction = defaultStopWarnFraction },
		},
		intFieldDefault("position.max_stop_warnings", &p.MaxStopWarnings, defaultMaxStopWarnings),
		intFieldDefault("position.archive_limit", &p.ArchiveLimit, defaultArchiveLimit),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("risk.max_concurrent_positions", &r.MaxConcurrentPositions, defaultMaxConcurrent),
		fieldDefault{
			key:   "risk.max_daily_loss_pct",
			need:  func() bool { return r.MaxDailyLossPct <= 0 },
			apply: func() { r.MaxDailyLossPct = defaultMaxDailyLossPct },
		},
		fieldDefault{
			key:   "risk.throttle.win_rate_floor",
			need:  func() bool { return r.Throttle.WinRateFloor <= 0 },
			apply: func() { r.Throttle.WinRateFloor = defaultWinRateFloor },
		},
		fieldDefault{
			key:   "risk.throttle.probability",
			need:  func() bool { return r.Throttle.Probability <= 0 },
			apply: func() { r.Throttle.Probability = defaultThrottleProb },
		},
		fieldDefault{
			key:   "risk.throttle.seed",
			need:  func() bool { return r.Throttle.Seed == 0 },
			apply: func() { r.Throttle.Seed = defaultThrottleSeed },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("store.enabled", &s.Enabled, true),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("notify.telegram.api_base_url", &n.Telegram.APIBaseURL, defaultTelegramAPI),
		intFieldDefault("notify.telegram.timeout_seconds", &n.Telegram.TimeoutSeconds, defaultTelegramTimeout),
	)
	for i, ev := range n.Events {
		n.Events[i] = strings.ToUpper(strings.TrimSpace(ev))
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
