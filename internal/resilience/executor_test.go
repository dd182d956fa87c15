package resilience

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

func TestBackoffDelay_Formula(t *testing.T) {
	p := Policy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond, JitterFactor: 0}
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 1, rng))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(p, 2, rng))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(p, 3, rng))
	// Capped at max.
	assert.Equal(t, 400*time.Millisecond, backoffDelay(p, 4, rng))
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	p := Policy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, JitterFactor: 0.5}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		d := backoffDelay(p, 1, rng)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestExecutor_TimeoutSurfacesWithinBound(t *testing.T) {
	p := testPolicy()
	p.Timeout = 50 * time.Millisecond
	p.Retryable = false
	e := NewExecutor(p)

	start := time.Now()
	_, err, outcome := e.Run(context.Background(), func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindTimeout))
	assert.Less(t, elapsed, 200*time.Millisecond)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	p := testPolicy()
	p.BaseBackoff = time.Millisecond
	p.MaxBackoff = 2 * time.Millisecond
	e := NewExecutor(p)

	calls := 0
	result, err, outcome := e.Run(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, apierr.New(apierr.KindUpstreamError, "transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestExecutor_DoesNotRetryNonTransient(t *testing.T) {
	p := testPolicy()
	e := NewExecutor(p)

	calls := 0
	_, err, _ := e.Run(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, apierr.New(apierr.KindNotFound, "missing")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecutor_DoesNotRetryWhenNotRetryable(t *testing.T) {
	p := testPolicy()
	p.Retryable = false
	e := NewExecutor(p)

	calls := 0
	_, err, _ := e.Run(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, apierr.New(apierr.KindUpstreamError, "transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecutor_CircuitOpenSkipsExecutionAndRetryBudget(t *testing.T) {
	p := testPolicy()
	p.BaseBackoff = time.Millisecond
	p.MaxBackoff = time.Millisecond
	e := NewExecutor(p)

	// Burn through retries until the breaker opens: three consecutive
	// recorded failures.
	calls := 0
	fail := func(context.Context) (any, error) {
		calls++
		return nil, apierr.New(apierr.KindUpstreamError, "down")
	}
	for e.breaker.State() != Open {
		_, _, _ = e.Run(context.Background(), fail)
	}

	// Circuit open: no handler invocation, no retry budget consumed.
	before := calls
	_, err, outcome := e.Run(context.Background(), fail)
	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindCircuitOpen))
	assert.Equal(t, before, calls)
	assert.Equal(t, 0, outcome.Attempts)
	assert.Greater(t, apierr.Of(err).RetryAfter, 0.0)
}

func TestExecutor_HalfOpenProbeSuccessCloses(t *testing.T) {
	p := testPolicy()
	p.BreakDuration = 20 * time.Millisecond
	p.BaseBackoff = time.Millisecond
	p.MaxBackoff = time.Millisecond
	e := NewExecutor(p)

	fail := func(context.Context) (any, error) {
		return nil, apierr.New(apierr.KindUpstreamError, "down")
	}
	for e.breaker.State() != Open {
		_, _, _ = e.Run(context.Background(), fail)
	}

	time.Sleep(30 * time.Millisecond)

	// The probe runs exactly once (no retries in half-open) and closes
	// the circuit on success.
	calls := 0
	result, err, outcome := e.Run(context.Background(), func(context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Closed, outcome.CircuitState)
}

func TestSemaphore_Bounds(t *testing.T) {
	s := NewSemaphore(2)

	require.True(t, s.Acquire(context.Background(), 10*time.Millisecond))
	require.True(t, s.Acquire(context.Background(), 10*time.Millisecond))
	assert.False(t, s.Acquire(context.Background(), 10*time.Millisecond))

	s.Release()
	assert.True(t, s.Acquire(context.Background(), 10*time.Millisecond))
}
