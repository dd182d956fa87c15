package resilience

import (
	"sync"
	"time"
)

// CircuitState is the externally observable state of a breaker.
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker is a per-tool circuit breaker: it opens after
// failureThreshold consecutive failures observed within
// samplingDuration, stays open for breakDuration, then allows exactly
// one half-open probe before resetting or reopening.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	samplingDuration time.Duration
	breakDuration    time.Duration

	state            CircuitState
	consecutiveFails int
	firstFailureAt   time.Time
	openedAt         time.Time
	probeInFlight    bool
}

// NewBreaker builds a closed breaker from the given policy.
func NewBreaker(p Policy) *Breaker {
	return &Breaker{
		failureThreshold: p.FailureThreshold,
		samplingDuration: p.SamplingDuration,
		breakDuration:    p.BreakDuration,
		state:            Closed,
	}
}

// Allow reports whether a call may proceed and, if so, whether it is
// the single half-open probe. now is injected for deterministic tests.
func (b *Breaker) Allow(now time.Time) (allowed bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, false
	case Open:
		if now.Sub(b.openedAt) >= b.breakDuration {
			b.state = HalfOpen
			b.probeInFlight = true
			return true, true
		}
		return false, false
	case HalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true, true
		}
		return false, false
	}
	return false, false
}

// RecordSuccess resets the breaker to Closed. A successful half-open
// probe immediately closes the circuit.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFails = 0
	b.probeInFlight = false
}

// RecordFailure registers a failed call. A failed half-open probe
// reopens the circuit; a run of failureThreshold consecutive failures
// within samplingDuration (while closed) opens it.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.open(now)
		return
	}

	if b.consecutiveFails == 0 {
		b.firstFailureAt = now
	} else if now.Sub(b.firstFailureAt) > b.samplingDuration {
		b.consecutiveFails = 0
		b.firstFailureAt = now
	}
	b.consecutiveFails++

	if b.failureThreshold > 0 && b.consecutiveFails >= b.failureThreshold {
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = Open
	b.openedAt = now
	b.consecutiveFails = 0
	b.probeInFlight = false
}

// State reports the current state, for metrics/diagnostics.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter reports the remaining break duration, for the
// circuit-open error's advisory retryAfter field.
func (b *Breaker) RetryAfter(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	remaining := b.breakDuration - now.Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
