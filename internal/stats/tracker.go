// Package stats keeps rolling per-symbol trade outcomes without storing trade history.
package stats

import (
	"sort"
	"sync"
	"time"
)

type PairStatistics struct {
	Symbol          string  `json:"symbol"`
	TradeCount      int     `json:"trade_count"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	AvgWinPercent   float64 `json:"avg_win_percent"`
	AvgLossPercent  float64 `json:"avg_loss_percent"`
}

// WinRate is wins over trades in [0,1].
func (p PairStatistics) WinRate() float64 {
	if p.TradeCount == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.TradeCount)
}

func (p *PairStatistics) record(isWin bool, pnl float64) {
	p.TradeCount++
	p.TotalPnLPercent += pnl
	if isWin {
		p.Wins++
		p.AvgWinPercent = (p.AvgWinPercent*float64(p.Wins-1) + pnl) / float64(p.Wins)
		return
	}
	p.Losses++
	p.AvgLossPercent = (p.AvgLossPercent*float64(p.Losses-1) + pnl) / float64(p.Losses)
}

type Tracker struct {
	mu        sync.RWMutex
	pairs     map[string]*PairStatistics
	overall   PairStatistics
	lastReset time.Time
}

func NewTracker() *Tracker {
	return &Tracker{pairs: make(map[string]*PairStatistics)}
}

// Record folds one closed trade into the symbol and overall aggregates.
func (t *Tracker) Record(symbol string, isWin bool, pnlPercent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pairs[symbol]
	if !ok {
		p = &PairStatistics{Symbol: symbol}
		t.pairs[symbol] = p
	}
	p.record(isWin, pnlPercent)
	t.overall.record(isWin, pnlPercent)
}

// ResetDaily clears every aggregate. The caller owns the schedule.
func (t *Tracker) ResetDaily(now time.Time) {
	t.mu.Lock()
	t.pairs = make(map[string]*PairStatistics)
	t.overall = PairStatistics{}
	t.lastReset = now
	t.mu.Unlock()
}

// Pair returns the statistics for symbol; unknown symbols return a zero value.
func (t *Tracker) Pair(symbol string) PairStatistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.pairs[symbol]; ok {
		return *p
	}
	return PairStatistics{Symbol: symbol}
}

// All returns every tracked symbol, sorted.
func (t *Tracker) All() []PairStatistics {
	t.mu.RLock()
	out := make([]PairStatistics, 0, len(t.pairs))
	for _, p := range t.pairs {
		out = append(out, *p)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (t *Tracker) Overall() PairStatistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overall
}

// WinRate reports the overall win rate and the number of trades behind it.
func (t *Tracker) WinRate() (float64, int) {
	o := t.Overall()
	return o.WinRate(), o.TradeCount
}

func (t *Tracker) LastReset() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReset
}
