package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qcfg "quorum/internal/config"
	"quorum/internal/market"
	"quorum/internal/position"
	"quorum/internal/store/gormstore"
)

func risingSource() market.Source {
	return market.SourceFunc{
		Bars: func(_ context.Context, _ string, _ string, limit int) ([]market.Bar, error) {
			now := time.Now().Truncate(time.Hour)
			bars := make([]market.Bar, limit)
			for i := range bars {
				c := 100 + float64(i)
				bars[i] = market.Bar{
					OpenTime: now.Add(time.Duration(i-limit) * time.Hour),
					Open:     c - 0.5, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
				}
			}
			return bars, nil
		},
		Price: func(context.Context, string) (float64, error) { return 120, nil },
	}
}

func failingSource() market.Source {
	err := errors.New("exchange unavailable")
	return market.SourceFunc{
		Bars:  func(context.Context, string, string, int) ([]market.Bar, error) { return nil, err },
		Price: func(context.Context, string) (float64, error) { return 0, err },
	}
}

func testConfig(t *testing.T) *qcfg.Config {
	t.Helper()
	cfg := qcfg.Default()
	cfg.App.HTTPAddr = ""
	cfg.Engine.Symbols = []string{"BTC/USDT"}
	cfg.Engine.MinAgreement = 1
	cfg.Engine.MinConfidence = 50
	cfg.Engine.BarLimit = 60
	cfg.Indicators = []qcfg.IndicatorConfig{{Name: "ema_cross", Weight: 1}}
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "quorum.db")
	return cfg
}

func TestNewAppRejectsNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}

func TestBuildWiresOptionalComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.HTTPAddr = "127.0.0.1:0"

	a, err := NewApp(cfg, WithSource(failingSource()))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.store)
	assert.NotNil(t, a.liveHTTP)
	assert.Nil(t, a.notifier)
	assert.Equal(t, []string{"BTC/USDT"}, a.Engine().Symbols())
	require.NotNil(t, a.Summary)
	assert.Contains(t, a.Summary.String(), "ema_cross")
	assert.Contains(t, a.Summary.Outputs, "http:127.0.0.1:0")
}

func TestBuildWithoutStoreOrHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false

	a, err := NewApp(cfg, WithSource(failingSource()))
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.store)
	assert.Nil(t, a.liveHTTP)
	assert.Contains(t, a.Summary.String(), "[outputs]    -")
}

type recordingNotifier struct{ texts chan string }

func (r *recordingNotifier) SendText(_ context.Context, text string) error {
	r.texts <- text
	return nil
}

func TestRunOpensPersistsAndNotifies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.RunImmediately = true
	tg := &recordingNotifier{texts: make(chan string, 8)}

	a, err := NewApp(cfg, WithSource(risingSource()), WithNotifier(tg))
	require.NoError(t, err)
	eng := a.Engine()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(eng.OpenPositions()) == 1 }, 5*time.Second, 20*time.Millisecond)
	select {
	case text := <-tg.texts:
		assert.Contains(t, text, "BTC/USDT")
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	st, err := gormstore.NewGormStore(cfg.Store.Path)
	require.NoError(t, err)
	defer st.Close()
	open, err := st.LoadOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, position.SideLong, open[0].Side)
	assert.InDelta(t, 120, open[0].EntryPrice, 1e-9)
}

func TestBuildRestoresOpenPositions(t *testing.T) {
	cfg := testConfig(t)
	st, err := gormstore.NewGormStore(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, st.SavePosition(context.Background(), position.Position{
		ID: "p-1", Symbol: "BTC/USDT", Side: position.SideLong, Status: position.StatusOpen,
		EntryPrice: 100, StopLoss: 96, TakeProfit: 104, ATR: 2, SizeUnits: 1,
		OpenedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, st.Close())

	a, err := NewApp(cfg, WithSource(failingSource()))
	require.NoError(t, err)
	defer a.Close()

	open := a.Engine().OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "p-1", open[0].ID)
	assert.Equal(t, 1, a.Engine().Status().Risk.OpenPositionCount)
}

func TestBuildReplaysTodaysCloses(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Timezone = "UTC"
	cfg.Risk.MaxDailyLossPct = 3
	restart := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)

	st, err := gormstore.NewGormStore(cfg.Store.Path)
	require.NoError(t, err)
	rows := []position.Position{
		{ID: "y-1", Symbol: "ETH/USDT", PnLPercent: 4, ClosedAt: restart.Add(-20 * time.Hour)},
		{ID: "t-1", Symbol: "BTC/USDT", PnLPercent: -1.5, ClosedAt: restart.Add(-2 * time.Hour)},
		{ID: "t-2", Symbol: "BTC/USDT", PnLPercent: -1.6, ClosedAt: restart.Add(-5 * time.Minute)},
	}
	for _, p := range rows {
		p.Side, p.Status, p.CloseReason = position.SideLong, position.StatusClosed, position.ReasonStopLoss
		p.EntryPrice, p.StopLoss, p.TakeProfit = 100, 97, 103
		p.OpenedAt = p.ClosedAt.Add(-time.Hour)
		require.NoError(t, st.SavePosition(context.Background(), p))
	}
	require.NoError(t, st.Close())

	a, err := NewApp(cfg, WithSource(failingSource()), WithClock(func() time.Time { return restart }))
	require.NoError(t, err)
	defer a.Close()

	status := a.Engine().Status()
	assert.True(t, status.Risk.Tripped, "breaker tripped before the restart stays tripped")
	assert.InDelta(t, -3.1, status.Risk.DailyPnLPercent, 1e-9)
	assert.Equal(t, 2, status.Risk.ClosesToday)
	btc := a.Engine().PairStatistics("BTC/USDT")
	assert.Equal(t, 2, btc.Losses)
	assert.Zero(t, a.Engine().PairStatistics("ETH/USDT").TradeCount)
}

func TestRunReturnsOnCancelWhenSourceFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.RunImmediately = true
	a, err := NewApp(cfg, WithSource(failingSource()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
	assert.NotNil(t, a.Engine().Status().LastTick)
}

func TestRiskConfigMapping(t *testing.T) {
	rc := qcfg.RiskConfig{
		MaxConcurrentPositions: 2,
		MaxDailyLossPct:        4,
		TradingHours:           qcfg.TradingHoursConfig{Start: "22:00", End: "06:00"},
		Throttle:               qcfg.ThrottleConfig{Enabled: true, WinRateFloor: 0.5, Probability: 0.25, Seed: 7},
	}
	out, err := riskConfig(rc, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, out.MaxConcurrentPositions)
	require.NotNil(t, out.Hours)
	assert.True(t, out.Hours.Contains(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, uint64(7), out.Throttle.Seed)

	rc.TradingHours = qcfg.TradingHoursConfig{Start: "25:00", End: "06:00"}
	_, err = riskConfig(rc, time.UTC)
	assert.Error(t, err)
}

func TestIndicatorSpecsFallsBackToDefaults(t *testing.T) {
	assert.Len(t, indicatorSpecs(nil), 5)
	specs := indicatorSpecs([]qcfg.IndicatorConfig{{Name: "rsi", Weight: 2, Params: map[string]float64{"period": 7}}})
	require.Len(t, specs, 1)
	assert.Equal(t, 2.0, specs[0].Weight)
	assert.Equal(t, 7.0, specs[0].Params["period"])
}
