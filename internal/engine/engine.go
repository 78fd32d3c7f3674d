package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quorum/internal/analysis/indicator"
	"quorum/internal/decision"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/pkg/circuit"
	"quorum/internal/position"
	"quorum/internal/risk"
	"quorum/internal/stats"
)

// ErrTickInProgress is returned when EvaluateTick is called while another tick is running.
var ErrTickInProgress = errors.New("tick already in progress")

type Config struct {
	Symbols          []string
	Timeframe        string
	BarLimit         int
	ATRPeriod        int
	MinAgreement     int
	MinConfidence    float64
	MaxParallel      int
	FetchTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Params struct {
	Config    Config
	Source    market.Source
	Panel     *indicator.Panel
	Positions *position.Manager
	Gate      *risk.Gate
	Tracker   *stats.Tracker
	Sinks     []Sink
	Clock     func() time.Time
}

// Engine drives one evaluation pipeline over a fixed symbol list.
type Engine struct {
	cfg       Config
	source    market.Source
	panel     *indicator.Panel
	positions *position.Manager
	gate      *risk.Gate
	tracker   *stats.Tracker
	breakers  *circuit.Set

	// ledgerMu orders position opens and closes against the risk ledger and statistics, so
	// the gate's open count and daily pnl always match the position map when CanOpen runs.
	ledgerMu sync.Mutex

	sinksMu sync.RWMutex
	sinks   []Sink

	running  atomic.Bool
	lastTick atomic.Pointer[TickInfo]
	newID    func() string
	now      func() time.Time
}

func New(p Params) (*Engine, error) {
	switch {
	case p.Source == nil:
		return nil, fmt.Errorf("engine: market source is required")
	case p.Panel == nil, p.Positions == nil, p.Gate == nil, p.Tracker == nil:
		return nil, fmt.Errorf("engine: panel, positions, gate and tracker are required")
	}
	cfg := p.Config
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1h"
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 2 * time.Minute
	}
	if need := max(p.Panel.MinBars(), cfg.ATRPeriod+1); cfg.BarLimit < need {
		cfg.BarLimit = need
	}
	e := &Engine{
		cfg:       cfg,
		source:    p.Source,
		panel:     p.Panel,
		positions: p.Positions,
		gate:      p.Gate,
		tracker:   p.Tracker,
		breakers:  circuit.NewSet("Engine", cfg.BreakerThreshold, cfg.BreakerCooldown),
		sinks:     append([]Sink(nil), p.Sinks...),
		newID:     uuid.NewString,
		now:       p.Clock,
	}
	if e.now == nil {
		e.now = time.Now
	}
	p.Gate.OnDayRoll(func(now time.Time) {
		p.Tracker.ResetDaily(now)
	})
	p.Gate.SetWinRateSource(p.Tracker.WinRate)
	p.Gate.SetOpenPositions(p.Positions.Count())
	return e, nil
}

// AddSink registers an event consumer.
func (e *Engine) AddSink(s Sink) {
	if s == nil {
		return
	}
	e.sinksMu.Lock()
	e.sinks = append(e.sinks, s)
	e.sinksMu.Unlock()
}

// TickInfo summarises the most recent completed tick.
type TickInfo struct {
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Events   int           `json:"events"`
	Skipped  []string      `json:"skipped,omitempty"`
}

// EvaluateTick runs one pass: check every open position, then look for new entries if the
// risk gate has room. Ticks never overlap.
func (e *Engine) EvaluateTick(ctx context.Context, now time.Time) ([]Event, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer e.running.Store(false)
	started := time.Now()

	e.RollDay(now)
	var (
		events  []Event
		skipped []string
	)

	held := e.positions.Symbols()
	prices, failed := e.fetchPrices(ctx, held)
	skipped = append(skipped, failed...)
	e.ledgerMu.Lock()
	for _, sym := range held {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		res := e.positions.Tick(sym, price, now)
		if res.Action == position.ActionClosed {
			e.recordCloseLocked(res.Position, now)
		}
		events = append(events, e.eventsForTick(res, now)...)
	}
	e.gate.SetOpenPositions(e.positions.Count())
	e.ledgerMu.Unlock()

	if v := e.gate.CanOpen(now); v.Allowed {
		opened, failed := e.openCandidates(ctx, now)
		events = append(events, opened...)
		skipped = append(skipped, failed...)
	} else {
		logger.Debugf("engine: no new entries: %s %s", v.Reason, v.Detail)
	}

	e.dispatch(ctx, events)
	sort.Strings(skipped)
	e.lastTick.Store(&TickInfo{At: now, Duration: time.Since(started), Events: len(events), Skipped: skipped})
	return events, nil
}

// fetchPrices loads the last price for each symbol in parallel. Symbols whose fetch fails
// are returned in failed and left out of the map.
func (e *Engine) fetchPrices(ctx context.Context, symbols []string) (map[string]float64, []string) {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	var (
		mu     sync.Mutex
		failed []string
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.MaxParallel)
	for _, sym := range symbols {
		g.Go(func() error {
			price, err := e.fetchPrice(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("engine: price fetch failed symbol=%s err=%v", sym, err)
				failed = append(failed, sym)
				return nil
			}
			out[sym] = price
			return nil
		})
	}
	_ = g.Wait()
	return out, failed
}

func (e *Engine) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	cb := e.breakers.Get(symbol)
	if !cb.Allow() {
		return 0, fmt.Errorf("circuit open for %s", symbol)
	}
	price, err := withTimeout(ctx, e.cfg.FetchTimeout, func(c context.Context) (float64, error) {
		return e.source.FetchCurrentPrice(c, symbol)
	})
	if err == nil && price <= 0 {
		err = fmt.Errorf("non-positive price %v", price)
	}
	if err != nil {
		cb.RecordFailure()
		return 0, err
	}
	cb.RecordSuccess()
	return price, nil
}

func (e *Engine) fetchBars(ctx context.Context, symbol string) ([]market.Bar, error) {
	cb := e.breakers.Get(symbol)
	if !cb.Allow() {
		return nil, fmt.Errorf("circuit open for %s", symbol)
	}
	bars, err := withTimeout(ctx, e.cfg.FetchTimeout, func(c context.Context) ([]market.Bar, error) {
		return e.source.FetchBars(c, symbol, e.cfg.Timeframe, e.cfg.BarLimit)
	})
	if err != nil {
		cb.RecordFailure()
		return nil, err
	}
	cb.RecordSuccess()
	return bars, nil
}

// Evaluation is the analysis of one candidate symbol.
type Evaluation struct {
	Symbol   string                  `json:"symbol" yaml:"symbol"`
	Price    float64                 `json:"price" yaml:"price"`
	ATR      float64                 `json:"atr" yaml:"atr"`
	Bars     int                     `json:"bars" yaml:"bars"`
	Readings []indicator.Reading     `json:"readings" yaml:"readings"`
	Decision decision.SignalDecision `json:"decision" yaml:"decision"`
}

// Evaluate fetches data for symbol and runs the indicator panel and aggregator on it.
// It never opens a position.
func (e *Engine) Evaluate(ctx context.Context, symbol string) (Evaluation, error) {
	ev := Evaluation{Symbol: symbol}
	bars, err := e.fetchBars(ctx, symbol)
	if err != nil {
		return ev, fmt.Errorf("fetch bars: %w", err)
	}
	ev.Bars = len(bars)
	readings, err := e.panel.Evaluate(bars)
	if err != nil {
		return ev, err
	}
	atr, err := indicator.ATR(bars, e.cfg.ATRPeriod)
	if err != nil {
		return ev, err
	}
	price, err := e.fetchPrice(ctx, symbol)
	if err != nil {
		return ev, fmt.Errorf("fetch price: %w", err)
	}
	ev.Price, ev.ATR, ev.Readings = price, atr, readings
	ev.Decision = decision.Decide(readings, e.cfg.MinAgreement, e.cfg.MinConfidence)
	return ev, nil
}

func (e *Engine) openCandidates(ctx context.Context, now time.Time) ([]Event, []string) {
	var candidates []string
	for _, sym := range e.cfg.Symbols {
		if _, held := e.positions.Get(sym); !held {
			candidates = append(candidates, sym)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Strings(candidates)

	evals := make([]*Evaluation, len(candidates))
	var (
		mu     sync.Mutex
		failed []string
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.MaxParallel)
	for i, sym := range candidates {
		g.Go(func() error {
			ev, err := e.Evaluate(ctx, sym)
			if err != nil {
				var short *indicator.InsufficientDataError
				if errors.As(err, &short) {
					logger.Debugf("engine: skip %s: %v", sym, err)
				} else {
					logger.Warnf("engine: evaluate failed symbol=%s err=%v", sym, err)
				}
				mu.Lock()
				failed = append(failed, sym)
				mu.Unlock()
				return nil
			}
			evals[i] = &ev
			return nil
		})
	}
	_ = g.Wait()

	var events []Event
	for _, ev := range evals {
		if ev == nil || !ev.Decision.Actionable() {
			continue
		}
		pos, err := e.open(*ev, now)
		var capErr *position.CapacityError
		switch {
		case errors.As(err, &capErr):
			logger.Infof("engine: %s signal %s dropped: %v", ev.Symbol, ev.Decision.Direction, err)
			switch risk.Reason(capErr.Reason) {
			case risk.ReasonCapacity, risk.ReasonDailyLoss, risk.ReasonTradingHours:
				return events, failed
			}
		case err != nil:
			logger.Warnf("engine: open %s failed: %v", ev.Symbol, err)
			continue
		}
		events = append(events, e.openedEvent(pos))
	}
	return events, failed
}

func (e *Engine) open(ev Evaluation, now time.Time) (position.Position, error) {
	if ok, why := e.gate.VolatilityOK(ev.ATR, ev.Price); !ok {
		return position.Position{}, &position.CapacityError{Reason: "volatility", Detail: why}
	}
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	if v := e.gate.CanOpen(now); !v.Allowed {
		return position.Position{}, &position.CapacityError{Reason: string(v.Reason), Detail: v.Detail}
	}
	pos, err := e.positions.Open(ev.Symbol, ev.Decision, ev.Price, ev.ATR, now)
	if err != nil {
		return pos, err
	}
	e.gate.SetOpenPositions(e.positions.Count())
	return pos, nil
}

// recordCloseLocked books a close into the gate and tracker. Caller holds ledgerMu.
func (e *Engine) recordCloseLocked(pos position.Position, now time.Time) {
	e.gate.RecordClose(pos.PnLPercent, now)
	e.tracker.Record(pos.Symbol, pos.IsWin(), pos.PnLPercent)
	e.gate.SetOpenPositions(e.positions.Count())
}

// ManualClose closes symbol at the current market price. A symbol with nothing open, or one
// closed by a concurrent tick, reports AlreadyClosed.
func (e *Engine) ManualClose(ctx context.Context, symbol string) (position.CloseResult, error) {
	if _, ok := e.positions.Get(symbol); !ok {
		return position.CloseResult{Status: position.CloseAlreadyClosed}, nil
	}
	price, err := e.fetchPrice(ctx, symbol)
	if err != nil {
		logger.Warnf("engine: manual close %s without fresh price: %v", symbol, err)
		price = 0
	}
	now := e.now()
	e.ledgerMu.Lock()
	res := e.positions.Close(symbol, position.ReasonManual, price, now)
	if res.Status == position.CloseClosed {
		e.recordCloseLocked(res.Position, now)
	}
	e.ledgerMu.Unlock()
	if res.Status != position.CloseClosed {
		return res, nil
	}
	e.dispatch(ctx, []Event{e.closedEvent(res.Position)})
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	e.sinksMu.RLock()
	sinks := append([]Sink(nil), e.sinks...)
	e.sinksMu.RUnlock()
	for _, s := range sinks {
		if err := s.HandleEvents(ctx, events); err != nil {
			logger.Warnf("engine: sink %T failed: %v", s, err)
		}
	}
}

// RollDay performs the daily reset if now is on a new calendar date.
func (e *Engine) RollDay(now time.Time) bool {
	return e.gate.RollDay(now)
}

// Restore loads previously persisted OPEN positions.
func (e *Engine) Restore(positions []position.Position) error {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	if err := e.positions.Restore(positions); err != nil {
		return err
	}
	e.gate.SetOpenPositions(e.positions.Count())
	return nil
}

// ReplayCloses books persisted closes from the current risk day into the gate and the
// tracker, so a restart keeps the daily pnl, the breaker and the statistics. Closes from
// earlier days are ignored. It returns how many were replayed.
func (e *Engine) ReplayCloses(closed []position.Position) int {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	loc := e.gate.Location()
	today := e.gate.State().LastResetDate
	n := 0
	for _, pos := range closed {
		if pos.Status != position.StatusClosed || pos.ClosedAt.IsZero() {
			continue
		}
		if pos.ClosedAt.In(loc).Format(time.DateOnly) != today {
			continue
		}
		e.gate.RecordClose(pos.PnLPercent, pos.ClosedAt)
		e.tracker.Record(pos.Symbol, pos.IsWin(), pos.PnLPercent)
		n++
	}
	return n
}

func (e *Engine) OpenPositions() []position.Position { return e.positions.Snapshot() }

func (e *Engine) ClosedPositions() []position.Position { return e.positions.Closed() }

func (e *Engine) PairStatistics(symbol string) stats.PairStatistics { return e.tracker.Pair(symbol) }

func (e *Engine) AllStatistics() []stats.PairStatistics { return e.tracker.All() }

func (e *Engine) Symbols() []string { return append([]string(nil), e.cfg.Symbols...) }

type Status struct {
	Symbols  []string             `json:"symbols"`
	Ticking  bool                 `json:"ticking"`
	Risk     risk.State           `json:"risk"`
	Overall  stats.PairStatistics `json:"overall"`
	Open     int                  `json:"open"`
	Paused   []string             `json:"paused,omitempty"`
	LastTick *TickInfo            `json:"last_tick,omitempty"`
}

func (e *Engine) Status() Status {
	return Status{
		Symbols:  e.Symbols(),
		Ticking:  e.running.Load(),
		Risk:     e.gate.State(),
		Overall:  e.tracker.Overall(),
		Open:     e.positions.Count(),
		Paused:   e.breakers.Open(),
		LastTick: e.lastTick.Load(),
	}
}
