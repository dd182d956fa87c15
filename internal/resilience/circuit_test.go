package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		Timeout:          time.Second,
		Retryable:        true,
		MaxRetries:       3,
		BaseBackoff:      100 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		JitterFactor:     0.2,
		FailureThreshold: 3,
		SamplingDuration: 10 * time.Second,
		BreakDuration:    500 * time.Millisecond,
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(testPolicy())
	now := time.Now()

	for i := 0; i < 3; i++ {
		allowed, _ := b.Allow(now)
		require.True(t, allowed)
		b.RecordFailure(now)
	}

	assert.Equal(t, Open, b.State())
	allowed, _ := b.Allow(now.Add(100 * time.Millisecond))
	assert.False(t, allowed, "fourth call within breakDuration must be rejected")
}

func TestBreaker_HalfOpenProbeAndReset(t *testing.T) {
	b := NewBreaker(testPolicy())
	now := time.Now()

	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}
	require.Equal(t, Open, b.State())

	// After breakDuration a single probe is allowed.
	later := now.Add(600 * time.Millisecond)
	allowed, isProbe := b.Allow(later)
	require.True(t, allowed)
	assert.True(t, isProbe)

	// A concurrent second call is rejected while the probe is in flight.
	allowed, _ = b.Allow(later)
	assert.False(t, allowed)

	// A successful probe immediately resets to Closed.
	b.RecordSuccess(later)
	assert.Equal(t, Closed, b.State())
	allowed, isProbe = b.Allow(later)
	assert.True(t, allowed)
	assert.False(t, isProbe)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(testPolicy())
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}

	later := now.Add(time.Second)
	allowed, isProbe := b.Allow(later)
	require.True(t, allowed)
	require.True(t, isProbe)

	b.RecordFailure(later)
	assert.Equal(t, Open, b.State())
	allowed, _ = b.Allow(later.Add(100 * time.Millisecond))
	assert.False(t, allowed)
}

func TestBreaker_SamplingWindowResetsCount(t *testing.T) {
	b := NewBreaker(testPolicy())
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now.Add(time.Second))
	// Outside the sampling window: the run restarts.
	b.RecordFailure(now.Add(20 * time.Second))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_RetryAfter(t *testing.T) {
	b := NewBreaker(testPolicy())
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.RecordFailure(now)
	}

	remaining := b.RetryAfter(now.Add(100 * time.Millisecond))
	assert.InDelta(t, 400*time.Millisecond, remaining, float64(time.Millisecond))
}
