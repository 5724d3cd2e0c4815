package ai

import (
	"log/slog"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker trips after consecutive provider failures so a dead completion
// endpoint fails fast instead of burning the full backoff budget on every
// job. Half-open admits one trial call after the cooldown.
type breaker struct {
	mu           sync.Mutex
	maxFailures  int
	cooldown     time.Duration
	state        breakerState
	failures     int
	lastFailure  time.Time
	trialPending bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

// allow reports whether a call may proceed right now.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		b.trialPending = true
		slog.Info("completion breaker half-open", slog.Duration("cooldown", b.cooldown))
		return true
	case breakerHalfOpen:
		// One trial call at a time.
		if b.trialPending {
			return false
		}
		b.trialPending = true
		return true
	default:
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != breakerClosed {
		slog.Info("completion breaker closed", slog.String("from", b.state.String()))
	}
	b.state = breakerClosed
	b.failures = 0
	b.trialPending = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	b.trialPending = false
	if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
		if b.state != breakerOpen {
			slog.Warn("completion breaker opened", slog.Int("failures", b.failures))
		}
		b.state = breakerOpen
	}
}
