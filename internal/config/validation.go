package config

import (
	"fmt"
	"strings"

	"quorum/internal/risk"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := validateIndicators(c.Indicators); err != nil {
		return err
	}
	if err := c.Position.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(c.App); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return c.Notify.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be debug|info|warn|error, got %q", a.LogLevel)
	}
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text|json, got %q", a.LogFormat)
	}
	_, err := a.Location()
	return err
}

func (m *MarketConfig) validate() error {
	switch m.Name {
	case "binance", "gate":
	default:
		return fmt.Errorf("market.name must be binance|gate, got %q", m.Name)
	}
	if m.RESTBaseURL == "" {
		return fmt.Errorf("market.rest_base_url cannot be empty")
	}
	if m.HTTPTimeoutSeconds <= 0 || m.Burst <= 0 || m.RequestsPerSecond <= 0 {
		return fmt.Errorf("market timeout, requests_per_second and burst must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if len(e.Symbols) == 0 {
		return fmt.Errorf("engine.symbols requires at least one symbol")
	}
	for _, s := range e.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("engine.symbols contains an empty entry")
		}
	}
	if !IsValidInterval(e.Timeframe) {
		return fmt.Errorf("engine.timeframe %q is not an interval like 15m/1h/4h/1d", e.Timeframe)
	}
	if e.MinAgreement < 1 {
		return fmt.Errorf("engine.min_agreement must be >= 1")
	}
	if e.MinConfidence < 0 || e.MinConfidence > 100 {
		return fmt.Errorf("engine.min_confidence must be in [0,100]")
	}
	if e.ATRPeriod < 2 {
		return fmt.Errorf("engine.atr_period must be >= 2")
	}
	if e.TickIntervalSeconds < 1 {
		return fmt.Errorf("engine.tick_interval_seconds must be >= 1")
	}
	if e.FetchTimeoutSeconds < 1 || e.FetchTimeoutSeconds >= e.TickIntervalSeconds {
		return fmt.Errorf("engine.fetch_timeout_seconds must be in [1, tick_interval_seconds)")
	}
	if e.MaxParallel < 1 {
		return fmt.Errorf("engine.max_parallel must be >= 1")
	}
	return nil
}

func validateIndicators(items []IndicatorConfig) error {
	if len(items) == 0 {
		return fmt.Errorf("indicators requires at least one entry")
	}
	voting := 0
	for i, it := range items {
		if it.Name == "" {
			return fmt.Errorf("indicators[%d] missing name", i)
		}
		if it.Weight < 0 {
			return fmt.Errorf("indicators.%s weight must be >= 0", it.Name)
		}
		if it.Weight > 0 {
			voting++
		}
	}
	if voting == 0 {
		return fmt.Errorf("indicators: every weight is zero, nothing can vote")
	}
	return nil
}

func (p *PositionConfig) validate() error {
	if p.ATRMultiplier <= 0 {
		return fmt.Errorf("position.atr_multiplier must be > 0")
	}
	if p.TakeProfitMultiplier < 0 {
		return fmt.Errorf("position.take_profit_multiplier must be >= 0")
	}
	prev := 0.0
	for _, f := range p.PartialFractions {
		if f <= prev || f >= 1 {
			return fmt.Errorf("position.partial_fractions must be strictly ascending within (0,1)")
		}
		prev = f
	}
	if p.StopWarningFraction < 0 || p.StopWarningFraction >= 1 {
		return fmt.Errorf("position.stop_warning_fraction must be in [0,1)")
	}
	if p.PriceAlertPct < 0 || p.StakeUSD < 0 || p.MaxStopWarnings < 0 {
		return fmt.Errorf("position.price_alert_pct, stake_usd and max_stop_warnings must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate(app AppConfig) error {
	if r.MaxConcurrentPositions < 1 {
		return fmt.Errorf("risk.max_concurrent_positions must be >= 1")
	}
	if r.MaxDailyLossPct < 0 {
		return fmt.Errorf("risk.max_daily_loss_pct must be >= 0")
	}
	if r.MinATRPct < 0 || r.MaxATRPct < 0 || (r.MaxATRPct > 0 && r.MinATRPct > r.MaxATRPct) {
		return fmt.Errorf("risk.min_atr_pct/max_atr_pct form an empty band")
	}
	loc, err := app.Location()
	if err != nil {
		return err
	}
	if _, err := risk.ParseWindow(r.TradingHours.Start, r.TradingHours.End, r.TradingHours.Weekdays, loc); err != nil {
		return fmt.Errorf("risk.%w", err)
	}
	if t := r.Throttle; t.Enabled {
		if t.Probability < 0 || t.Probability > 1 {
			return fmt.Errorf("risk.throttle.probability must be in [0,1]")
		}
		if t.WinRateFloor < 0 || t.WinRateFloor > 1 {
			return fmt.Errorf("risk.throttle.win_rate_floor must be in [0,1]")
		}
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if s.Enabled && strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty when store is enabled")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	for _, ev := range n.Events {
		switch ev {
		case "OPENED", "CLOSED", "PARTIAL_HIT", "PRICE_ALERT", "STOP_WARNING":
		default:
			return fmt.Errorf("notify.events: unknown event %q", ev)
		}
	}
	return nil
}

// IsValidInterval reports whether s looks like 15m, 1h, 4h, 1d or 1w.
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
