package risk

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"quorum/internal/logger"
)

const dateLayout = "2006-01-02"

// State is the process-wide risk ledger.
type State struct {
	OpenPositionCount      int     `json:"open_position_count"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	DailyPnLPercent        float64 `json:"daily_pnl_percent"`
	MaxDailyLossPercent    float64 `json:"max_daily_loss_percent"`
	LastResetDate          string  `json:"last_reset_date"`
	Tripped                bool    `json:"tripped"`
	ClosesToday            int     `json:"closes_today"`
}

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonCapacity     Reason = "capacity"
	ReasonDailyLoss    Reason = "daily_loss"
	ReasonTradingHours Reason = "trading_hours"
	ReasonThrottled    Reason = "throttled"
)

// Verdict is the outcome of an open check.
type Verdict struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

func allow() Verdict { return Verdict{Allowed: true} }

func deny(r Reason, format string, args ...any) Verdict {
	return Verdict{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Evaluate is the open policy: capacity, then the daily-loss breaker, then trading hours.
func Evaluate(st State, now time.Time, hours *Window) Verdict {
	if st.OpenPositionCount >= st.MaxConcurrentPositions {
		return deny(ReasonCapacity, "open positions %d/%d", st.OpenPositionCount, st.MaxConcurrentPositions)
	}
	if st.MaxDailyLossPercent > 0 && (st.Tripped || st.DailyPnLPercent <= -st.MaxDailyLossPercent) {
		return deny(ReasonDailyLoss, "daily pnl %.2f%% breached -%.2f%%", st.DailyPnLPercent, st.MaxDailyLossPercent)
	}
	if !hours.Contains(now) {
		return deny(ReasonTradingHours, "outside %s", hours)
	}
	return allow()
}

// ThrottleConfig gates opens by a seeded coin flip while the day is red and the recent win rate
// is below a floor.
type ThrottleConfig struct {
	Enabled      bool
	WinRateFloor float64
	Probability  float64
	Seed         uint64
}

type Config struct {
	MaxConcurrentPositions int
	MaxDailyLossPercent    float64
	Location               *time.Location
	Hours                  *Window
	MinATRPercent          float64
	MaxATRPercent          float64
	Throttle               ThrottleConfig
}

// WinRateFunc reports the current win rate in [0,1] and how many trades it covers.
type WinRateFunc func() (rate float64, trades int)

// Gate owns State. All methods are safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	rng     *rand.Rand
	winRate WinRateFunc
	onRoll  []func(time.Time)
}

func NewGate(cfg Config, now time.Time) *Gate {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	g := &Gate{
		cfg: cfg,
		state: State{
			MaxConcurrentPositions: cfg.MaxConcurrentPositions,
			MaxDailyLossPercent:    cfg.MaxDailyLossPercent,
			LastResetDate:          now.In(cfg.Location).Format(dateLayout),
		},
	}
	if cfg.Throttle.Enabled {
		g.rng = rand.New(rand.NewPCG(cfg.Throttle.Seed, cfg.Throttle.Seed^0x9e3779b97f4a7c15))
	}
	return g
}

// SetWinRateSource wires the statistics used by the throttle.
func (g *Gate) SetWinRateSource(fn WinRateFunc) {
	g.mu.Lock()
	g.winRate = fn
	g.mu.Unlock()
}

// OnDayRoll registers fn to run on every daily reset, whichever call triggered it.
// fn runs with the gate locked and must not call back into the gate.
func (g *Gate) OnDayRoll(fn func(time.Time)) {
	g.mu.Lock()
	g.onRoll = append(g.onRoll, fn)
	g.mu.Unlock()
}

// Location is the zone that defines the daily boundary.
func (g *Gate) Location() *time.Location { return g.cfg.Location }

// RollDay resets the daily ledger when now falls on a later calendar date than the last reset.
// It returns true exactly once per new date.
func (g *Gate) RollDay(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rollLocked(now)
}

func (g *Gate) rollLocked(now time.Time) bool {
	today := now.In(g.cfg.Location).Format(dateLayout)
	if today <= g.state.LastResetDate {
		return false
	}
	logger.Infof("risk: daily reset %s -> %s (pnl=%.2f%% closes=%d tripped=%v)",
		g.state.LastResetDate, today, g.state.DailyPnLPercent, g.state.ClosesToday, g.state.Tripped)
	g.state.DailyPnLPercent = 0
	g.state.ClosesToday = 0
	g.state.Tripped = false
	g.state.LastResetDate = today
	for _, fn := range g.onRoll {
		fn(now)
	}
	return true
}

// CanOpen applies Evaluate and, when configured, the throttle.
func (g *Gate) CanOpen(now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked(now)
	v := Evaluate(g.state, now, g.cfg.Hours)
	if !v.Allowed {
		return v
	}
	return g.throttleLocked()
}

func (g *Gate) throttleLocked() Verdict {
	t := g.cfg.Throttle
	if !t.Enabled || g.rng == nil || g.winRate == nil || g.state.DailyPnLPercent >= 0 {
		return allow()
	}
	rate, trades := g.winRate()
	if trades == 0 || rate >= t.WinRateFloor {
		return allow()
	}
	if g.rng.Float64() < t.Probability {
		return allow()
	}
	return deny(ReasonThrottled, "win rate %.0f%% below %.0f%%", rate*100, t.WinRateFloor*100)
}

// RecordClose adds a closed position's PnL to the day. Call once per close.
func (g *Gate) RecordClose(pnlPercent float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked(now)
	g.state.DailyPnLPercent += pnlPercent
	g.state.ClosesToday++
	if g.state.MaxDailyLossPercent > 0 && !g.state.Tripped && g.state.DailyPnLPercent <= -g.state.MaxDailyLossPercent {
		g.state.Tripped = true
		logger.Warnf("risk: daily loss breaker tripped at %.2f%% (limit -%.2f%%)",
			g.state.DailyPnLPercent, g.state.MaxDailyLossPercent)
	}
}

// SetOpenPositions mirrors the position manager's OPEN count.
func (g *Gate) SetOpenPositions(n int) {
	g.mu.Lock()
	g.state.OpenPositionCount = n
	g.mu.Unlock()
}

// VolatilityOK checks ATR as a percentage of price against the configured band.
func (g *Gate) VolatilityOK(atr, price float64) (bool, string) {
	if price <= 0 {
		return false, "no price"
	}
	pct := atr / price * 100
	if g.cfg.MinATRPercent > 0 && pct < g.cfg.MinATRPercent {
		return false, fmt.Sprintf("atr %.3f%% below %.3f%%", pct, g.cfg.MinATRPercent)
	}
	if g.cfg.MaxATRPercent > 0 && pct > g.cfg.MaxATRPercent {
		return false, fmt.Sprintf("atr %.3f%% above %.3f%%", pct, g.cfg.MaxATRPercent)
	}
	return true, ""
}

// State returns a copy of the ledger.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
