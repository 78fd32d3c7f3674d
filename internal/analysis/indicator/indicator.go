package indicator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/markcheno/go-talib"

	"quorum/internal/market"
)

// Signal is the ternary vote an indicator casts.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Reading is one indicator's output for the latest bar.
type Reading struct {
	Name   string  `json:"name" yaml:"name"`
	Value  float64 `json:"value" yaml:"value"`
	Signal Signal  `json:"signal" yaml:"signal"`
	Weight float64 `json:"weight" yaml:"weight"`
	Note   string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// Indicator computes a value from a bar series and maps it to a vote using its own fixed policy.
type Indicator interface {
	Name() string
	MinBars() int
	Compute(s market.Series) (value float64, signal Signal, note string)
}

// InsufficientDataError reports that the series is shorter than an indicator's lookback.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("indicator %s: insufficient bars need %d got %d", e.Indicator, e.Need, e.Got)
}

// Spec configures one panel slot. Weight is static; 0 keeps the reading but mutes its vote.
type Spec struct {
	Name   string             `toml:"name" yaml:"name"`
	Weight float64            `toml:"weight" yaml:"weight"`
	Params map[string]float64 `toml:"params" yaml:"params,omitempty"`
}

// DefaultSpecs is the five-indicator panel used when nothing is configured.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "rsi", Weight: 1},
		{Name: "macd", Weight: 1},
		{Name: "bollinger", Weight: 1},
		{Name: "ema_cross", Weight: 1},
		{Name: "stoch", Weight: 1},
	}
}

type entry struct {
	ind    Indicator
	weight float64
}

// Panel evaluates a fixed, ordered set of indicators.
type Panel struct {
	entries []entry
	minBars int
}

// NewPanel builds a panel from specs; an empty list selects DefaultSpecs.
func NewPanel(specs []Spec) (*Panel, error) {
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	p := &Panel{}
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		name := strings.ToLower(strings.TrimSpace(spec.Name))
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("indicator #%d: duplicate %q", i+1, name)
		}
		seen[name] = struct{}{}
		if spec.Weight < 0 || math.IsNaN(spec.Weight) {
			return nil, fmt.Errorf("indicator %s: weight must be >= 0", name)
		}
		ind, err := New(name, spec.Params)
		if err != nil {
			return nil, err
		}
		p.entries = append(p.entries, entry{ind: ind, weight: spec.Weight})
		if ind.MinBars() > p.minBars {
			p.minBars = ind.MinBars()
		}
	}
	return p, nil
}

// MinBars is the longest lookback among the configured indicators.
func (p *Panel) MinBars() int { return p.minBars }

// Names lists the configured indicators in evaluation order.
func (p *Panel) Names() []string {
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.ind.Name())
	}
	return out
}

// Evaluate computes every reading, or fails before computing anything when any indicator
// lacks history.
func (p *Panel) Evaluate(bars []market.Bar) ([]Reading, error) {
	for _, e := range p.entries {
		if need := e.ind.MinBars(); len(bars) < need {
			return nil, &InsufficientDataError{Indicator: e.ind.Name(), Need: need, Got: len(bars)}
		}
	}
	series := market.Columns(bars)
	out := make([]Reading, 0, len(p.entries))
	for _, e := range p.entries {
		val, sig, note := e.ind.Compute(series)
		out = append(out, Reading{
			Name:   e.ind.Name(),
			Value:  round4(val),
			Signal: sig,
			Weight: e.weight,
			Note:   note,
		})
	}
	return out, nil
}

// ATR returns the latest average true range over period bars.
func ATR(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(bars) < period+1 {
		return 0, &InsufficientDataError{Indicator: "atr", Need: period + 1, Got: len(bars)}
	}
	s := market.Columns(bars)
	series := sanitizeSeries(talib.Atr(s.High, s.Low, s.Close, period))
	val := lastValid(series)
	if val <= 0 {
		return 0, fmt.Errorf("atr: no positive value over %d bars", len(bars))
	}
	return val, nil
}

// Known lists the registered indicator names.
func Known() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
