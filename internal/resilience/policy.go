// Package resilience wraps tool execution with timeout, retry,
// circuit-breaker, and concurrency-limiting behavior: exponential
// backoff with uniform jitter, a per-tool breaker, and a FIFO-fair
// global permit.
package resilience

import (
	"math/rand"
	"time"
)

// Policy holds the per-tool (or global-default) resilience knobs. All
// fields are configurable; nothing is hard-coded.
type Policy struct {
	Timeout          time.Duration
	Retryable        bool
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	JitterFactor     float64
	FailureThreshold int
	SamplingDuration time.Duration
	BreakDuration    time.Duration
}

// backoffDelay implements delay_i = min(max, base * 2^(i-1)) * (1 + U(0, jitterFactor)),
// attempt is 1-indexed (the delay before the 2nd attempt, etc).
func backoffDelay(p Policy, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseBackoff)
	mult := 1 << uint(attempt-1) // 2^(attempt-1)
	delay := base * float64(mult)
	if max := float64(p.MaxBackoff); p.MaxBackoff > 0 && delay > max {
		delay = max
	}
	jitter := 1.0
	if p.JitterFactor > 0 {
		jitter = 1.0 + rng.Float64()*p.JitterFactor
	}
	return time.Duration(delay * jitter)
}
