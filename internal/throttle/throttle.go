// Package throttle spaces outbound calls to the issue tracker so that no two
// calls start closer together than a configured minimum delay.
package throttle

import (
	"context"
	"sync"
	"time"
)

// DefaultMinCallDelay is the spacing used when none is configured.
const DefaultMinCallDelay = 400 * time.Millisecond

// Clock abstracts time so tests can run without real sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is cancelled.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter enforces a minimum spacing between calls to Acquire. One Limiter is
// shared by every component that talks to the tracker.
type Limiter struct {
	minDelay time.Duration
	clock    Clock

	mu       sync.Mutex
	lastCall time.Time
	calls    int64
	waited   time.Duration
}

// New creates a limiter. A non-positive minDelay disables spacing; a nil clock
// means the wall clock.
func New(minDelay time.Duration, clock Clock) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Limiter{
		minDelay: minDelay,
		clock:    clock,
	}
}

// Acquire blocks until at least the minimum delay has passed since the
// previous Acquire returned. Callers are served in lock order.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastCall.IsZero() && l.minDelay > 0 {
		wait := l.minDelay - l.clock.Now().Sub(l.lastCall)
		if wait > 0 {
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			l.waited += wait
		}
	}

	l.lastCall = l.clock.Now()
	l.calls++
	return nil
}

// MinDelay returns the configured spacing.
func (l *Limiter) MinDelay() time.Duration {
	return l.minDelay
}

// Stats returns limiter statistics
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"min_delay_ms": l.minDelay.Milliseconds(),
		"calls":        l.calls,
		"waited_ms":    l.waited.Milliseconds(),
	}
}
