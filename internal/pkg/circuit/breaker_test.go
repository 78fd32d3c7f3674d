package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second).WithClock(func() time.Time { return now })
	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestSetReusesBreakers(t *testing.T) {
	s := NewSet("engine", 3, time.Minute)
	assert.Same(t, s.Get("BTC/USDT"), s.Get("BTC/USDT"))
	assert.NotSame(t, s.Get("BTC/USDT"), s.Get("ETH/USDT"))
}

func TestSetListsOpenKeys(t *testing.T) {
	s := NewSet("engine", 1, time.Minute)
	s.Get("ETH/USDT").RecordFailure()
	s.Get("BTC/USDT").RecordFailure()
	s.Get("SOL/USDT").RecordSuccess()
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, s.Open())
	assert.False(t, s.Get("BTC/USDT").RetryAt().IsZero())
	assert.True(t, s.Get("SOL/USDT").RetryAt().IsZero())
}
