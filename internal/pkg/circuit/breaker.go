package circuit

import (
	"slices"
	"sync"
	"time"

	"quorum/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "CLOSED", StateOpen: "OPEN", StateHalfOpen: "HALF-OPEN"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// CircuitBreaker counts consecutive failures of one collaborator. After threshold failures
// it refuses calls until cooldown has passed, then lets calls through as probes: the next
// success closes it, the next failure re-opens it for another cooldown.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu      sync.Mutex
	now     func() time.Time
	state   State
	streak  int
	retryAt time.Time
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: max(threshold, 1),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	if now != nil {
		cb.mu.Lock()
		cb.now = now
		cb.mu.Unlock()
	}
	return cb
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryAt is when an open breaker starts probing again. Zero unless open.
func (cb *CircuitBreaker) RetryAt() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return time.Time{}
	}
	return cb.retryAt
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Before(cb.retryAt) {
		return false
	}
	cb.moveTo(StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak = 0
	if cb.state == StateHalfOpen {
		cb.moveTo(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak++
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.streak >= cb.threshold) {
		cb.retryAt = cb.now().Add(cb.cooldown)
		cb.moveTo(StateOpen)
	}
}

func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	logger.Warnf("circuit %s: %s -> %s (streak=%d threshold=%d cooldown=%s)",
		cb.name, cb.state, to, cb.streak, cb.threshold, cb.cooldown)
	cb.state = to
}

// Set lazily creates one breaker per key.
type Set struct {
	prefix    string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewSet(prefix string, threshold int, cooldown time.Duration) *Set {
	return &Set{
		prefix:    prefix,
		threshold: threshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

func (s *Set) Get(key string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(s.prefix+"."+key, s.threshold, s.cooldown)
		s.breakers[key] = cb
	}
	return cb
}

// Open lists the keys whose breaker is currently open, sorted.
func (s *Set) Open() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for key, cb := range s.breakers {
		if cb.State() == StateOpen {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}
