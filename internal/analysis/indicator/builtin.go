package indicator

import (
	"fmt"
	"slices"

	"github.com/markcheno/go-talib"

	"quorum/internal/market"
)

type factory func(p params) (Indicator, error)

var registry = map[string]factory{
	"rsi":        newRSI,
	"macd":       newMACD,
	"bollinger":  newBollinger,
	"ema_cross":  newEMACross,
	"stoch":      newStoch,
	"williams_r": newWilliamsR,
	"cci":        newCCI,
	"mfi":        newMFI,
}

// New constructs a registered indicator with params falling back to defaults.
func New(name string, raw map[string]float64) (Indicator, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown indicator %q (known: %v)", name, Known())
	}
	return f(params(raw))
}

type params map[string]float64

func (p params) float(key string, def float64) float64 {
	if v, ok := p[key]; ok && v != 0 {
		return v
	}
	return def
}

func (p params) period(key string, def int) (int, error) {
	v := int(p.float(key, float64(def)))
	if v < 2 {
		return 0, fmt.Errorf("%s must be >= 2, got %d", key, v)
	}
	return v, nil
}

// band maps value to BUY at or below low and SELL at or above high.
func band(value, low, high float64) Signal {
	switch {
	case value <= low:
		return SignalBuy
	case value >= high:
		return SignalSell
	default:
		return SignalHold
	}
}

type rsi struct {
	period               int
	oversold, overbought float64
}

func newRSI(p params) (Indicator, error) {
	period, err := p.period("period", 14)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	r := &rsi{period: period, oversold: p.float("oversold", 30), overbought: p.float("overbought", 70)}
	if r.oversold >= r.overbought {
		return nil, fmt.Errorf("rsi: oversold %.1f must be below overbought %.1f", r.oversold, r.overbought)
	}
	return r, nil
}

func (r *rsi) Name() string { return "rsi" }
func (r *rsi) MinBars() int { return r.period + 1 }
func (r *rsi) Compute(s market.Series) (float64, Signal, string) {
	note := fmt.Sprintf("period=%d thresholds=%.0f/%.0f", r.period, r.oversold, r.overbought)
	if flat(s.Close, r.period+1) {
		return 50, SignalHold, note + " flat"
	}
	val := lastValid(talib.Rsi(s.Close, r.period))
	return val, band(val, r.oversold, r.overbought), note
}

type macd struct{ fast, slow, signal int }

func newMACD(p params) (Indicator, error) {
	fast, err := p.period("fast", 12)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	slow, err := p.period("slow", 26)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	sig, err := p.period("signal", 9)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	if fast >= slow {
		return nil, fmt.Errorf("macd: fast %d must be below slow %d", fast, slow)
	}
	return &macd{fast: fast, slow: slow, signal: sig}, nil
}

func (m *macd) Name() string { return "macd" }
func (m *macd) MinBars() int { return m.slow + m.signal }

// Compute votes on the histogram sign.
func (m *macd) Compute(s market.Series) (float64, Signal, string) {
	line, sig, hist := talib.Macd(s.Close, m.fast, m.slow, m.signal)
	h := lastValid(hist)
	vote := SignalHold
	switch {
	case h > 0:
		vote = SignalBuy
	case h < 0:
		vote = SignalSell
	}
	return h, vote, fmt.Sprintf("macd=%.4f signal=%.4f", lastValid(line), lastValid(sig))
}

type bollinger struct {
	period int
	stddev float64
}

func newBollinger(p params) (Indicator, error) {
	period, err := p.period("period", 20)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	dev := p.float("stddev", 2)
	if dev <= 0 {
		return nil, fmt.Errorf("bollinger: stddev must be > 0")
	}
	return &bollinger{period: period, stddev: dev}, nil
}

func (b *bollinger) Name() string { return "bollinger" }
func (b *bollinger) MinBars() int { return b.period }

// Compute reports %B: 0 at the lower band, 1 at the upper band.
func (b *bollinger) Compute(s market.Series) (float64, Signal, string) {
	upper, mid, lower := talib.BBands(s.Close, b.period, b.stddev, b.stddev, talib.SMA)
	u, m, l := lastValid(upper), lastValid(mid), lastValid(lower)
	price := s.Close[len(s.Close)-1]
	note := fmt.Sprintf("upper=%.4f mid=%.4f lower=%.4f", u, m, l)
	if u <= l {
		return 0.5, SignalHold, note
	}
	pctB := (price - l) / (u - l)
	vote := SignalHold
	switch {
	case price <= l:
		vote = SignalBuy
	case price >= u:
		vote = SignalSell
	}
	return pctB, vote, note
}

type emaCross struct {
	fast, slow int
	tolerance  float64
}

func newEMACross(p params) (Indicator, error) {
	fast, err := p.period("fast", 9)
	if err != nil {
		return nil, fmt.Errorf("ema_cross: %w", err)
	}
	slow, err := p.period("slow", 21)
	if err != nil {
		return nil, fmt.Errorf("ema_cross: %w", err)
	}
	if fast >= slow {
		return nil, fmt.Errorf("ema_cross: fast %d must be below slow %d", fast, slow)
	}
	return &emaCross{fast: fast, slow: slow, tolerance: p.float("tolerance", 0.001)}, nil
}

func (e *emaCross) Name() string { return "ema_cross" }
func (e *emaCross) MinBars() int { return e.slow }

// Compute reports the fast/slow spread as a fraction of the slow EMA.
func (e *emaCross) Compute(s market.Series) (float64, Signal, string) {
	fast := lastValid(talib.Ema(s.Close, e.fast))
	slow := lastValid(talib.Ema(s.Close, e.slow))
	note := fmt.Sprintf("ema%d=%.4f ema%d=%.4f", e.fast, fast, e.slow, slow)
	if slow == 0 {
		return 0, SignalHold, note
	}
	spread := fast/slow - 1
	vote := SignalHold
	switch {
	case spread > e.tolerance:
		vote = SignalBuy
	case spread < -e.tolerance:
		vote = SignalSell
	}
	return spread, vote, note
}

type stoch struct{ k, slowK, slowD int }

func newStoch(p params) (Indicator, error) {
	k, err := p.period("k", 14)
	if err != nil {
		return nil, fmt.Errorf("stoch: %w", err)
	}
	sk := int(p.float("slowk", 3))
	sd := int(p.float("slowd", 3))
	if sk < 1 || sd < 1 {
		return nil, fmt.Errorf("stoch: slowk/slowd must be >= 1")
	}
	return &stoch{k: k, slowK: sk, slowD: sd}, nil
}

func (st *stoch) Name() string { return "stoch" }
func (st *stoch) MinBars() int { return st.k + st.slowK + st.slowD }
func (st *stoch) Compute(s market.Series) (float64, Signal, string) {
	if flatRange(s.High, s.Low, st.MinBars()) {
		return 50, SignalHold, "flat range"
	}
	k, d := talib.Stoch(s.High, s.Low, s.Close, st.k, st.slowK, talib.SMA, st.slowD, talib.SMA)
	kv := lastValid(k)
	return kv, band(kv, 20, 80), fmt.Sprintf("d=%.2f", lastValid(d))
}

type williamsR struct{ period int }

func newWilliamsR(p params) (Indicator, error) {
	period, err := p.period("period", 14)
	if err != nil {
		return nil, fmt.Errorf("williams_r: %w", err)
	}
	return &williamsR{period: period}, nil
}

func (w *williamsR) Name() string { return "williams_r" }
func (w *williamsR) MinBars() int { return w.period }
func (w *williamsR) Compute(s market.Series) (float64, Signal, string) {
	if flatRange(s.High, s.Low, w.period) {
		return -50, SignalHold, fmt.Sprintf("period=%d flat range", w.period)
	}
	val := lastValid(talib.WillR(s.High, s.Low, s.Close, w.period))
	return val, band(val, -80, -20), fmt.Sprintf("period=%d", w.period)
}

type cci struct{ period int }

func newCCI(p params) (Indicator, error) {
	period, err := p.period("period", 20)
	if err != nil {
		return nil, fmt.Errorf("cci: %w", err)
	}
	return &cci{period: period}, nil
}

func (c *cci) Name() string { return "cci" }
func (c *cci) MinBars() int { return c.period }
func (c *cci) Compute(s market.Series) (float64, Signal, string) {
	if flat(typicalPrices(s, c.period), c.period) {
		return 0, SignalHold, fmt.Sprintf("period=%d flat", c.period)
	}
	val := lastValid(talib.Cci(s.High, s.Low, s.Close, c.period))
	return val, band(val, -100, 100), fmt.Sprintf("period=%d", c.period)
}

type mfi struct{ period int }

func newMFI(p params) (Indicator, error) {
	period, err := p.period("period", 14)
	if err != nil {
		return nil, fmt.Errorf("mfi: %w", err)
	}
	return &mfi{period: period}, nil
}

func (m *mfi) Name() string { return "mfi" }
func (m *mfi) MinBars() int { return m.period + 1 }
func (m *mfi) Compute(s market.Series) (float64, Signal, string) {
	n := m.period + 1
	if flat(typicalPrices(s, n), n) || sum(s.Volume, n) == 0 {
		return 50, SignalHold, fmt.Sprintf("period=%d no money flow", m.period)
	}
	val := lastValid(talib.Mfi(s.High, s.Low, s.Close, s.Volume, m.period))
	return val, band(val, 20, 80), fmt.Sprintf("period=%d", m.period)
}

// tail returns the last n values, or all of them when fewer exist.
func tail(values []float64, n int) []float64 {
	if n <= 0 || n > len(values) {
		return values
	}
	return values[len(values)-n:]
}

// flat reports whether the last n values are all equal. Oscillators read zero movement as an
// extreme, so callers turn it into a neutral reading.
func flat(values []float64, n int) bool {
	w := tail(values, n)
	for _, v := range w {
		if v != w[0] {
			return false
		}
	}
	return true
}

// flatRange reports a zero high-low range over the last n bars.
func flatRange(high, low []float64, n int) bool {
	h, l := tail(high, n), tail(low, n)
	if len(h) == 0 || len(l) == 0 {
		return true
	}
	return slices.Max(h) <= slices.Min(l)
}

func typicalPrices(s market.Series, n int) []float64 {
	h, l, c := tail(s.High, n), tail(s.Low, n), tail(s.Close, n)
	out := make([]float64, len(c))
	for i := range c {
		out[i] = (h[i] + l[i] + c[i]) / 3
	}
	return out
}

func sum(values []float64, n int) float64 {
	var total float64
	for _, v := range tail(values, n) {
		total += v
	}
	return total
}
