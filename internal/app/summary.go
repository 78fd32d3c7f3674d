package app

import (
	"fmt"
	"strings"

	"quorum/internal/analysis/indicator"
	qcfg "quorum/internal/config"
)

type StartupSummary struct {
	Symbols    []string
	Timeframe  string
	Indicators []string
	Agreement  string
	Levels     string
	Risk       RiskSummary
	Outputs    []string
}

type RiskSummary struct {
	MaxConcurrent int
	MaxDailyLoss  float64
	TradingHours  string
	Volatility    string
	Throttle      string
}

func buildSummary(cfg *qcfg.Config, panel *indicator.Panel, a *App) *StartupSummary {
	s := &StartupSummary{
		Symbols:    a.engine.Symbols(),
		Timeframe:  cfg.Engine.Timeframe,
		Indicators: panel.Names(),
		Agreement: fmt.Sprintf("min_agreement=%d min_confidence=%.0f",
			cfg.Engine.MinAgreement, cfg.Engine.MinConfidence),
		Levels: fmt.Sprintf("stop=%.2fxATR take_profit=%.2fxATR partials=%v stake=%.2f USD",
			cfg.Position.ATRMultiplier, takeProfitMultiplier(cfg.Position), cfg.Position.PartialFractions, cfg.Position.StakeUSD),
		Risk: RiskSummary{
			MaxConcurrent: cfg.Risk.MaxConcurrentPositions,
			MaxDailyLoss:  cfg.Risk.MaxDailyLossPct,
			TradingHours:  "always",
			Volatility:    "off",
			Throttle:      "off",
		},
	}
	if th := cfg.Risk.TradingHours; th.Start != "" {
		s.Risk.TradingHours = fmt.Sprintf("%s-%s %s", th.Start, th.End, cfg.App.Timezone)
		if len(th.Weekdays) > 0 {
			s.Risk.TradingHours += " " + strings.Join(th.Weekdays, ",")
		}
	}
	if cfg.Risk.MinATRPct > 0 || cfg.Risk.MaxATRPct > 0 {
		s.Risk.Volatility = fmt.Sprintf("ATR%% in [%.2f, %.2f]", cfg.Risk.MinATRPct, cfg.Risk.MaxATRPct)
	}
	if t := cfg.Risk.Throttle; t.Enabled {
		s.Risk.Throttle = fmt.Sprintf("win_rate<%.2f -> p=%.2f", t.WinRateFloor, t.Probability)
	}
	if a.store != nil {
		s.Outputs = append(s.Outputs, "sqlite:"+cfg.Store.Path)
	}
	if a.notifier != nil {
		s.Outputs = append(s.Outputs, "telegram")
	}
	if a.liveHTTP != nil {
		s.Outputs = append(s.Outputs, "http:"+a.liveHTTP.Addr())
	}
	return s
}

func takeProfitMultiplier(p qcfg.PositionConfig) float64 {
	if p.TakeProfitMultiplier > 0 {
		return p.TakeProfitMultiplier
	}
	return p.ATRMultiplier
}

// String renders the summary block printed at startup.
func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 72)
	b.WriteString(line + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "[market]     %s @ %s\n", formatList(s.Symbols), s.Timeframe)
	fmt.Fprintf(&b, "[panel]      %s\n", formatList(s.Indicators))
	fmt.Fprintf(&b, "[decision]   %s\n", s.Agreement)
	fmt.Fprintf(&b, "[levels]     %s\n", s.Levels)
	fmt.Fprintf(&b, "[risk]       max_open=%d max_daily_loss=%.2f%%\n", s.Risk.MaxConcurrent, s.Risk.MaxDailyLoss)
	fmt.Fprintf(&b, "             hours=%s volatility=%s throttle=%s\n", s.Risk.TradingHours, s.Risk.Volatility, s.Risk.Throttle)
	fmt.Fprintf(&b, "[outputs]    %s\n", formatList(s.Outputs))
	b.WriteString(line)
	return b.String()
}

func (s *StartupSummary) Print() {
	fmt.Println(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
