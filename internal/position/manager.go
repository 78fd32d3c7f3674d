package position

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quorum/internal/decision"
	"quorum/internal/logger"
)

type Config struct {
	ATRMultiplier        float64
	TakeProfitMultiplier float64
	PartialFractions     []float64
	StakeUSD             float64
	PriceAlertPercent    float64
	StopWarningFraction  float64
	MaxStopWarnings      int
	ArchiveLimit         int
}

func DefaultConfig() Config {
	return Config{
		ATRMultiplier:       2,
		PartialFractions:    []float64{0.5, 0.75},
		StakeUSD:            100,
		PriceAlertPercent:   1,
		StopWarningFraction: 0.25,
		MaxStopWarnings:     1,
		ArchiveLimit:        200,
	}
}

func (c Config) Validate() error {
	if c.ATRMultiplier <= 0 {
		return fmt.Errorf("atr_multiplier must be > 0")
	}
	if c.TakeProfitMultiplier < 0 {
		return fmt.Errorf("take_profit_multiplier must be >= 0")
	}
	prev := 0.0
	for i, f := range c.PartialFractions {
		if f <= prev || f >= 1 {
			return fmt.Errorf("partial_fractions[%d]=%v must be ascending within (0,1)", i, f)
		}
		prev = f
	}
	if c.StakeUSD < 0 || c.PriceAlertPercent < 0 || c.StopWarningFraction < 0 || c.MaxStopWarnings < 0 {
		return fmt.Errorf("stake, alert and warning settings must be >= 0")
	}
	if c.StopWarningFraction >= 1 {
		return fmt.Errorf("stop_warning_fraction must be < 1")
	}
	return nil
}

func (c Config) tpMultiplier() float64 {
	if c.TakeProfitMultiplier > 0 {
		return c.TakeProfitMultiplier
	}
	return c.ATRMultiplier
}

type Action string

const (
	ActionNone       Action = "NO_ACTION"
	ActionPartialHit Action = "PARTIAL_HIT"
	ActionClosed     Action = "CLOSED"
)

// TickResult describes what one price observation did to a position. PriceAlert and
// StopWarning are side channels reported alongside Action.
type TickResult struct {
	Symbol      string
	Action      Action
	Level       int
	Levels      []int
	Reason      CloseReason
	Price       float64
	PnLPercent  float64
	PriceAlert  bool
	AlertFrom   float64
	StopWarning bool
	Position    Position
}

type CloseStatus string

const (
	CloseClosed        CloseStatus = "Closed"
	CloseAlreadyClosed CloseStatus = "AlreadyClosed"
)

type CloseResult struct {
	Status   CloseStatus
	Position Position
}

// Manager owns every position. A single mutex serialises open, tick and close.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	open    map[string]*Position
	archive []Position
	newID   func() string
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("position config: %w", err)
	}
	if cfg.ArchiveLimit <= 0 {
		cfg.ArchiveLimit = DefaultConfig().ArchiveLimit
	}
	return &Manager{
		cfg:   cfg,
		open:  make(map[string]*Position),
		newID: uuid.NewString,
	}, nil
}

// Open creates an OPEN position with ATR-derived stop, take-profit and partial targets.
// The risk gate is the caller's concern.
func (m *Manager) Open(symbol string, d decision.SignalDecision, price, atr float64, now time.Time) (Position, error) {
	symbol = strings.TrimSpace(symbol)
	side, ok := SideFor(d.Direction)
	if symbol == "" || !ok {
		return Position{}, fmt.Errorf("%w: symbol=%q direction=%s", ErrInvalidOpen, symbol, d.Direction)
	}
	if !positiveFinite(price) || !positiveFinite(atr) {
		return Position{}, fmt.Errorf("%w: price=%v atr=%v", ErrInvalidOpen, price, atr)
	}
	stopDist := atr * m.cfg.ATRMultiplier
	tpDist := atr * m.cfg.tpMultiplier()
	stop := offset(side, price, stopDist, false)
	tp := offset(side, price, tpDist, true)
	if stop <= 0 || tp <= 0 {
		return Position{}, fmt.Errorf("%w: stop %v / take-profit %v not positive", ErrInvalidOpen, stop, tp)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.open[symbol]; exists {
		return Position{}, &PositionExistsError{Symbol: symbol}
	}
	targets := make([]PartialTarget, 0, len(m.cfg.PartialFractions))
	for i, f := range m.cfg.PartialFractions {
		targets = append(targets, PartialTarget{Level: i + 1, Fraction: f, Price: between(price, tp, f)})
	}
	pos := &Position{
		ID:             m.newID(),
		Symbol:         symbol,
		Side:           side,
		EntryPrice:     price,
		StopLoss:       stop,
		TakeProfit:     tp,
		ATR:            atr,
		PartialTargets: targets,
		SizeUnits:      units(m.cfg.StakeUSD, price),
		OpenedAt:       now,
		LastAlertPrice: price,
		LastPrice:      price,
		Status:         StatusOpen,
		Decision:       d,
	}
	m.open[symbol] = pos
	logger.Infof("position: opened %s %s entry=%.6f sl=%.6f tp=%.6f size=%.8f",
		side, symbol, price, stop, tp, pos.SizeUnits)
	return pos.clone(), nil
}

// Tick applies one price observation. Absent or closed symbols yield NO_ACTION.
func (m *Manager) Tick(symbol string, price float64, now time.Time) TickResult {
	res := TickResult{Symbol: symbol, Action: ActionNone, Price: price}
	if !positiveFinite(price) {
		return res
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.open[symbol]
	if !ok {
		return res
	}
	pos.LastPrice = price
	pos.PnLPercent = pnlPercent(pos.Side, pos.EntryPrice, price)
	res.PnLPercent = pos.PnLPercent

	switch {
	case hitStopLoss(pos.Side, price, pos.StopLoss):
		res.Action, res.Reason = ActionClosed, ReasonStopLoss
	case targetHit(pos.Side, price, pos.TakeProfit):
		res.Action, res.Reason = ActionClosed, ReasonTakeProfit
	}
	if res.Action == ActionClosed {
		res.Position = m.closeLocked(pos, res.Reason, price, now)
		return res
	}

	for i := range pos.PartialTargets {
		t := &pos.PartialTargets[i]
		if t.Hit || !targetHit(pos.Side, price, t.Price) {
			continue
		}
		t.Hit, t.HitAt = true, now
		res.Levels = append(res.Levels, t.Level)
		res.Level = t.Level
		res.Action = ActionPartialHit
	}

	if m.cfg.PriceAlertPercent > 0 && pos.LastAlertPrice > 0 {
		move := absDiff(price, pos.LastAlertPrice) / pos.LastAlertPrice * 100
		if move > m.cfg.PriceAlertPercent {
			res.PriceAlert, res.AlertFrom = true, pos.LastAlertPrice
			pos.LastAlertPrice = price
		}
	}

	if m.cfg.StopWarningFraction > 0 && pos.StopWarningsSent < m.cfg.MaxStopWarnings {
		full := absDiff(pos.EntryPrice, pos.StopLoss)
		adverse := pos.PnLPercent < 0
		if adverse && full > 0 && absDiff(price, pos.StopLoss) <= full*m.cfg.StopWarningFraction {
			pos.StopWarningsSent++
			res.StopWarning = true
		}
	}

	res.Position = pos.clone()
	return res
}

// Close is the only path to CLOSED. Closing an absent symbol reports AlreadyClosed.
func (m *Manager) Close(symbol string, reason CloseReason, exitPrice float64, now time.Time) CloseResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.open[symbol]
	if !ok {
		return CloseResult{Status: CloseAlreadyClosed}
	}
	if !positiveFinite(exitPrice) {
		exitPrice = pos.LastPrice
	}
	return CloseResult{Status: CloseClosed, Position: m.closeLocked(pos, reason, exitPrice, now)}
}

func (m *Manager) closeLocked(pos *Position, reason CloseReason, price float64, now time.Time) Position {
	pos.Status = StatusClosed
	pos.CloseReason = reason
	pos.ExitPrice = price
	pos.LastPrice = price
	pos.ClosedAt = now
	pos.PnLPercent = pnlPercent(pos.Side, pos.EntryPrice, price)
	delete(m.open, pos.Symbol)

	closed := pos.clone()
	m.archive = append(m.archive, closed)
	if over := len(m.archive) - m.cfg.ArchiveLimit; over > 0 {
		m.archive = append([]Position(nil), m.archive[over:]...)
	}
	logger.Infof("position: closed %s %s reason=%s exit=%.6f pnl=%.2f%%",
		pos.Side, pos.Symbol, reason, price, pos.PnLPercent)
	return closed.clone()
}

// Get returns a copy of the OPEN position for symbol.
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.open[symbol]
	if !ok {
		return Position{}, false
	}
	return pos.clone(), true
}

// Snapshot returns copies of all OPEN positions ordered by symbol.
func (m *Manager) Snapshot() []Position {
	m.mu.Lock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p.clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Symbols lists the symbols with an OPEN position, sorted.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.open))
	for s := range m.open {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// Closed returns the archive, oldest first.
func (m *Manager) Closed() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, len(m.archive))
	for i, p := range m.archive {
		out[i] = p.clone()
	}
	return out
}

// Restore loads OPEN positions recovered from storage. The whole batch is rejected when it
// contains duplicates or collides with a position already held.
func (m *Manager) Restore(positions []Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		switch {
		case p.Status != StatusOpen:
			return fmt.Errorf("restore %s: status %s is not OPEN", p.Symbol, p.Status)
		case p.Side != SideLong && p.Side != SideShort:
			return fmt.Errorf("restore %s: bad side %q", p.Symbol, p.Side)
		case !positiveFinite(p.EntryPrice), !positiveFinite(p.StopLoss), !positiveFinite(p.TakeProfit):
			return fmt.Errorf("restore %s: entry %v, stop %v and take profit %v must be positive",
				p.Symbol, p.EntryPrice, p.StopLoss, p.TakeProfit)
		case seen[p.Symbol]:
			return &PositionExistsError{Symbol: p.Symbol}
		}
		if _, ok := m.open[p.Symbol]; ok {
			return &PositionExistsError{Symbol: p.Symbol}
		}
		seen[p.Symbol] = true
	}
	for _, p := range positions {
		cp := p.clone()
		if cp.ID == "" {
			cp.ID = m.newID()
		}
		if cp.LastAlertPrice <= 0 {
			cp.LastAlertPrice = cp.EntryPrice
		}
		m.open[cp.Symbol] = &cp
	}
	if len(positions) > 0 {
		logger.Infof("position: restored %d open positions", len(positions))
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
