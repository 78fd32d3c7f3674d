package indicator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/market"
)

func trend(n int, start, step float64) []market.Bar {
	bars := make([]market.Bar, n)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = market.Bar{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     c - step/2,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return bars
}

func readingByName(t *testing.T, rs []Reading, name string) Reading {
	t.Helper()
	for _, r := range rs {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("reading %s not found", name)
	return Reading{}
}

func TestPanelDefaultMinBars(t *testing.T) {
	p, err := NewPanel(nil)
	require.NoError(t, err)
	assert.Equal(t, 35, p.MinBars())
	assert.Equal(t, []string{"rsi", "macd", "bollinger", "ema_cross", "stoch"}, p.Names())
}

func TestPanelInsufficientData(t *testing.T) {
	p, err := NewPanel(nil)
	require.NoError(t, err)

	rs, err := p.Evaluate(trend(20, 100, 1))
	assert.Nil(t, rs)
	var insuf *InsufficientDataError
	require.True(t, errors.As(err, &insuf))
	assert.Equal(t, "macd", insuf.Indicator)
	assert.Equal(t, 35, insuf.Need)
	assert.Equal(t, 20, insuf.Got)
}

func TestPanelUptrendVotes(t *testing.T) {
	p, err := NewPanel([]Spec{
		{Name: "rsi", Weight: 1},
		{Name: "ema_cross", Weight: 2},
		{Name: "williams_r", Weight: 0},
	})
	require.NoError(t, err)

	rs, err := p.Evaluate(trend(60, 100, 1))
	require.NoError(t, err)
	require.Len(t, rs, 3)

	r := readingByName(t, rs, "rsi")
	assert.Equal(t, SignalSell, r.Signal, "a one-way rally pins RSI at the overbought band")
	assert.InDelta(t, 100, r.Value, 0.01)

	e := readingByName(t, rs, "ema_cross")
	assert.Equal(t, SignalBuy, e.Signal)
	assert.Equal(t, 2.0, e.Weight)

	w := readingByName(t, rs, "williams_r")
	assert.Equal(t, SignalSell, w.Signal)
	assert.Equal(t, 0.0, w.Weight)
}

func TestPanelDowntrendVotes(t *testing.T) {
	p, err := NewPanel([]Spec{{Name: "rsi", Weight: 1}, {Name: "ema_cross", Weight: 1}, {Name: "williams_r", Weight: 1}})
	require.NoError(t, err)

	rs, err := p.Evaluate(trend(60, 200, -1))
	require.NoError(t, err)
	assert.Equal(t, SignalBuy, readingByName(t, rs, "rsi").Signal)
	assert.Equal(t, SignalSell, readingByName(t, rs, "ema_cross").Signal)
	assert.Equal(t, SignalBuy, readingByName(t, rs, "williams_r").Signal)
}

func TestPanelRejectsBadSpecs(t *testing.T) {
	_, err := NewPanel([]Spec{{Name: "nope", Weight: 1}})
	assert.Error(t, err)

	_, err = NewPanel([]Spec{{Name: "rsi", Weight: -1}})
	assert.Error(t, err)

	_, err = NewPanel([]Spec{{Name: "rsi", Weight: 1}, {Name: "RSI", Weight: 1}})
	assert.Error(t, err)

	_, err = NewPanel([]Spec{{Name: "macd", Weight: 1, Params: map[string]float64{"fast": 30, "slow": 26}}})
	assert.Error(t, err)
}

func TestPanelParamsChangeLookback(t *testing.T) {
	p, err := NewPanel([]Spec{{Name: "rsi", Weight: 1, Params: map[string]float64{"period": 7}}})
	require.NoError(t, err)
	assert.Equal(t, 8, p.MinBars())

	_, err = p.Evaluate(trend(8, 100, 1))
	assert.NoError(t, err)
}

func TestATR(t *testing.T) {
	atr, err := ATR(trend(40, 100, 1), 14)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, atr, 1e-6)

	_, err = ATR(trend(10, 100, 1), 14)
	var insuf *InsufficientDataError
	assert.True(t, errors.As(err, &insuf))
}

func TestBand(t *testing.T) {
	assert.Equal(t, SignalBuy, band(30, 30, 70))
	assert.Equal(t, SignalSell, band(70, 30, 70))
	assert.Equal(t, SignalHold, band(50, 30, 70))
}

func allIndicators(t *testing.T) *Panel {
	t.Helper()
	specs := make([]Spec, 0, len(Known()))
	for _, name := range Known() {
		specs = append(specs, Spec{Name: name, Weight: 1})
	}
	p, err := NewPanel(specs)
	require.NoError(t, err)
	return p
}

func flatBars(n int, price float64) []market.Bar {
	bars := make([]market.Bar, n)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.Bar{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price, Close: price, Volume: 1000}
	}
	return bars
}

func TestPanelFlatSeriesHolds(t *testing.T) {
	p := allIndicators(t)
	rs, err := p.Evaluate(flatBars(60, 100))
	require.NoError(t, err)
	require.Len(t, rs, 8)
	for _, r := range rs {
		assert.Equal(t, SignalHold, r.Signal, r.Name)
	}
	assert.Equal(t, 50.0, readingByName(t, rs, "rsi").Value)
	assert.Equal(t, 50.0, readingByName(t, rs, "stoch").Value)
	assert.Equal(t, 50.0, readingByName(t, rs, "mfi").Value)
	assert.Equal(t, -50.0, readingByName(t, rs, "williams_r").Value)
}

func TestPanelFlatTailHolds(t *testing.T) {
	bars := trend(40, 100, 1)
	last := bars[len(bars)-1].Close
	tail := flatBars(25, last)
	for i := range tail {
		tail[i].OpenTime = bars[len(bars)-1].OpenTime.Add(time.Duration(i+1) * time.Hour)
	}
	bars = append(bars, tail...)

	p, err := NewPanel([]Spec{{Name: "rsi", Weight: 1}, {Name: "stoch", Weight: 1}, {Name: "williams_r", Weight: 1}, {Name: "mfi", Weight: 1}})
	require.NoError(t, err)
	rs, err := p.Evaluate(bars)
	require.NoError(t, err)
	for _, r := range rs {
		assert.Equal(t, SignalHold, r.Signal, r.Name)
	}
}

func TestMFIZeroVolumeHolds(t *testing.T) {
	bars := trend(30, 100, 1)
	for i := range bars {
		bars[i].Volume = 0
	}
	p, err := NewPanel([]Spec{{Name: "mfi", Weight: 1}})
	require.NoError(t, err)
	rs, err := p.Evaluate(bars)
	require.NoError(t, err)
	assert.Equal(t, SignalHold, rs[0].Signal)
	assert.Equal(t, 50.0, rs[0].Value)
}
