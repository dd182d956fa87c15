package resilience

import (
	"context"
	"time"
)

// Semaphore is a counting semaphore backed by a buffered channel:
// acquiring sends a token, releasing receives one. Goroutines blocked
// on the channel send are served in roughly the order they arrived,
// which keeps permit acquisition FIFO-fair.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore builds a semaphore with size permits.
func NewSemaphore(size int) *Semaphore {
	if size < 1 {
		size = 1
	}
	return &Semaphore{tokens: make(chan struct{}, size)}
}

// Acquire blocks until a permit is available, ctx is canceled, or
// acquireTimeout elapses, whichever comes first.
func (s *Semaphore) Acquire(ctx context.Context, acquireTimeout time.Duration) bool {
	var timeoutC <-chan time.Time
	if acquireTimeout > 0 {
		t := time.NewTimer(acquireTimeout)
		defer t.Stop()
		timeoutC = t.C
	}
	select {
	case s.tokens <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-timeoutC:
		return false
	}
}

// Release returns a permit to the pool.
func (s *Semaphore) Release() {
	select {
	case <-s.tokens:
	default:
	}
}

// InUse reports the number of permits currently held, for metrics.
func (s *Semaphore) InUse() int {
	return len(s.tokens)
}
