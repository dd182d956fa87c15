package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

// Outcome summarizes one execution for metrics/tracing: success or
// failure, duration, attempt count, breaker state.
type Outcome struct {
	Attempts     int
	Duration     time.Duration
	CircuitState CircuitState
	Err          error
}

// Executor runs a tool invocation through timeout, retry, and circuit
// breaker. One Executor per tool; it owns that tool's Breaker so
// failures/successes are tracked independently per tool.
type Executor struct {
	policy  Policy
	breaker *Breaker
	now     func() time.Time
	rng     *rand.Rand
}

// NewExecutor builds an executor for one tool's policy.
func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:  policy,
		breaker: NewBreaker(policy),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// jitteredBackOff adapts our exact spec formula to backoff.BackOff.
type jitteredBackOff struct {
	policy  Policy
	attempt int
	rng     *rand.Rand
}

func (j *jitteredBackOff) NextBackOff() time.Duration {
	j.attempt++
	return backoffDelay(j.policy, j.attempt, j.rng)
}

// Reset restores the backoff to its initial state, as required by
// backoff.BackOff.
func (j *jitteredBackOff) Reset() {
	j.attempt = 0
}

// Run executes fn under the timeout/retry/circuit-breaker wrapper.
// fn should return an *apierr.Error (or any error, normalized via
// apierr.Of) so transience can be classified.
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error, Outcome) {
	start := e.now()

	allowed, isProbe := e.breaker.Allow(e.now())
	if !allowed {
		retryAfter := e.breaker.RetryAfter(e.now()).Seconds()
		err := apierr.New(apierr.KindCircuitOpen, "circuit open for this tool").WithRetryAfter(retryAfter)
		return nil, err, Outcome{CircuitState: e.breaker.State(), Err: err}
	}

	if isProbe || !e.policy.Retryable {
		result, err, attempts := e.runOnce(ctx, fn)
		e.record(err)
		return result, err, Outcome{
			Attempts:     attempts,
			Duration:     e.now().Sub(start),
			CircuitState: e.breaker.State(),
			Err:          err,
		}
	}

	bo := &jitteredBackOff{policy: e.policy, rng: e.rng}
	attempts := 0
	result, err := backoff.Retry(ctx, func() (any, error) {
		attempts++
		res, callErr := e.runOnceNoRetryWrap(ctx, fn)
		if callErr == nil {
			return res, nil
		}
		apiErr := apierr.Of(callErr)
		if !apiErr.Kind.Transient() {
			return nil, backoff.Permanent(callErr)
		}
		return nil, callErr
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(e.policy.MaxRetries+1)))

	e.record(err)
	return result, err, Outcome{
		Attempts:     attempts,
		Duration:     e.now().Sub(start),
		CircuitState: e.breaker.State(),
		Err:          err,
	}
}

func (e *Executor) runOnce(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error, int) {
	res, err := e.runOnceNoRetryWrap(ctx, fn)
	return res, err, 1
}

func (e *Executor) runOnceNoRetryWrap(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	timeout := e.policy.Timeout
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type res struct {
		val any
		err error
	}
	done := make(chan res, 1)
	go func() {
		v, err := fn(cctx)
		done <- res{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, apierr.New(apierr.KindTimeout, "tool execution timed out")
		}
		return nil, apierr.New(apierr.KindCanceled, "tool execution canceled")
	}
}

func (e *Executor) record(err error) {
	now := e.now()
	if err == nil {
		e.breaker.RecordSuccess(now)
		return
	}
	apiErr := apierr.Of(err)
	if apiErr.Kind == apierr.KindCanceled {
		return
	}
	e.breaker.RecordFailure(now)
}
