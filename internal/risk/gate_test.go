package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestEvaluateCapacity(t *testing.T) {
	st := State{OpenPositionCount: 3, MaxConcurrentPositions: 3, MaxDailyLossPercent: 5}
	v := Evaluate(st, day0, nil)
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonCapacity, v.Reason)

	st.OpenPositionCount = 2
	assert.True(t, Evaluate(st, day0, nil).Allowed)
}

func TestBreakerStaysTrippedUntilNextDay(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 5, MaxDailyLossPercent: 3}, day0)

	g.RecordClose(-2, day0)
	assert.True(t, g.CanOpen(day0).Allowed)
	g.RecordClose(-1.5, day0)
	v := g.CanOpen(day0)
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonDailyLoss, v.Reason)

	g.RecordClose(+1, day0.Add(time.Hour))
	assert.InDelta(t, -2.5, g.State().DailyPnLPercent, 1e-9)
	assert.True(t, g.State().Tripped)
	assert.False(t, g.CanOpen(day0.Add(2*time.Hour)).Allowed)

	next := day0.Add(24 * time.Hour)
	assert.True(t, g.CanOpen(next).Allowed)
	st := g.State()
	assert.False(t, st.Tripped)
	assert.Zero(t, st.DailyPnLPercent)
	assert.Equal(t, "2026-03-03", st.LastResetDate)
}

func TestRollDayOncePerDate(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 1}, day0)
	assert.False(t, g.RollDay(day0.Add(time.Hour)))
	assert.True(t, g.RollDay(day0.Add(24*time.Hour)))
	assert.False(t, g.RollDay(day0.Add(25*time.Hour)))
	// clock going backwards never resets
	assert.False(t, g.RollDay(day0))
}

func TestOnDayRollFiresForLazyReset(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 1, MaxDailyLossPercent: 2}, day0)
	var rolls []time.Time
	g.OnDayRoll(func(now time.Time) { rolls = append(rolls, now) })

	g.RecordClose(-1, day0)
	assert.Empty(t, rolls)
	next := day0.Add(24 * time.Hour)
	g.RecordClose(-1, next)
	assert.Equal(t, []time.Time{next}, rolls)
	assert.InDelta(t, -1, g.State().DailyPnLPercent, 1e-9)
	assert.False(t, g.RollDay(next))
	assert.Len(t, rolls, 1)
}

func TestRollDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) // 23:00 local
	g := NewGate(Config{MaxConcurrentPositions: 1, Location: loc}, start)
	assert.True(t, g.RollDay(start.Add(90*time.Minute)))
	assert.Equal(t, "2026-03-03", g.State().LastResetDate)
}

func TestSetOpenPositions(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 2}, day0)
	g.SetOpenPositions(2)
	assert.Equal(t, ReasonCapacity, g.CanOpen(day0).Reason)
	g.SetOpenPositions(1)
	assert.True(t, g.CanOpen(day0).Allowed)
}

func TestTradingHoursWindow(t *testing.T) {
	w, err := ParseWindow("22:00", "02:00", nil, time.UTC)
	require.NoError(t, err)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	assert.True(t, w.Contains(at(23, 0)))
	assert.True(t, w.Contains(at(1, 59)))
	assert.False(t, w.Contains(at(2, 0)))
	assert.False(t, w.Contains(at(12, 0)))

	w, err = ParseWindow("09:00", "17:00", []string{"Mon", "tuesday"}, time.UTC)
	require.NoError(t, err)
	monday, wednesday := at(9, 0), at(9, 0).Add(48*time.Hour)
	assert.True(t, w.Contains(monday))
	assert.False(t, w.Contains(wednesday))
	assert.False(t, w.Contains(at(17, 0)))

	g := NewGate(Config{MaxConcurrentPositions: 1, Hours: w}, day0)
	assert.Equal(t, ReasonTradingHours, g.CanOpen(at(20, 0)).Reason)
}

func TestParseWindowErrors(t *testing.T) {
	w, err := ParseWindow("", "", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.True(t, w.Contains(day0))

	for _, tc := range [][2]string{{"9am", "17:00"}, {"09:00", "25:00"}, {"10:00", "10:00"}} {
		_, err := ParseWindow(tc[0], tc[1], nil, nil)
		assert.Error(t, err, tc)
	}
	_, err = ParseWindow("09:00", "10:00", []string{"funday"}, nil)
	assert.Error(t, err)
}

func TestVolatilityFilter(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 1, MinATRPercent: 0.5, MaxATRPercent: 5}, day0)
	ok, _ := g.VolatilityOK(2, 100)
	assert.True(t, ok)
	ok, why := g.VolatilityOK(0.1, 100)
	assert.False(t, ok)
	assert.Contains(t, why, "below")
	ok, why = g.VolatilityOK(10, 100)
	assert.False(t, ok)
	assert.Contains(t, why, "above")
	ok, _ = g.VolatilityOK(1, 0)
	assert.False(t, ok)
}

func TestThrottle(t *testing.T) {
	losing := func() (float64, int) { return 0.2, 10 }
	mk := func(p float64, seed uint64) *Gate {
		g := NewGate(Config{
			MaxConcurrentPositions: 10,
			MaxDailyLossPercent:    50,
			Throttle:               ThrottleConfig{Enabled: true, WinRateFloor: 0.4, Probability: p, Seed: seed},
		}, day0)
		g.SetWinRateSource(losing)
		return g
	}

	g := mk(0, 1)
	assert.True(t, g.CanOpen(day0).Allowed, "green day is never throttled")
	g.RecordClose(-1, day0)
	assert.Equal(t, ReasonThrottled, g.CanOpen(day0).Reason)

	g = mk(1, 1)
	g.RecordClose(-1, day0)
	assert.True(t, g.CanOpen(day0).Allowed)

	draw := func(seed uint64) []bool {
		g := mk(0.5, seed)
		g.RecordClose(-1, day0)
		out := make([]bool, 32)
		for i := range out {
			out[i] = g.CanOpen(day0).Allowed
		}
		return out
	}
	assert.Equal(t, draw(42), draw(42))
}

func TestThrottleDisabledByDefault(t *testing.T) {
	g := NewGate(Config{MaxConcurrentPositions: 10, MaxDailyLossPercent: 50}, day0)
	g.SetWinRateSource(func() (float64, int) { return 0, 100 })
	g.RecordClose(-5, day0)
	for i := 0; i < 20; i++ {
		require.True(t, g.CanOpen(day0).Allowed)
	}
}
