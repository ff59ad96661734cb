package throttle

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_SpacesSequentialCalls(t *testing.T) {
	clock := newFakeClock()
	limiter := New(400*time.Millisecond, clock)
	start := clock.Now()

	const n = 10
	for i := 0; i < n; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	elapsed := clock.Now().Sub(start)
	if want := (n - 1) * 400 * time.Millisecond; elapsed < want {
		t.Errorf("elapsed = %v, want >= %v", elapsed, want)
	}
}

func TestLimiter_NoWaitWhenCallerIsSlow(t *testing.T) {
	clock := newFakeClock()
	limiter := New(400*time.Millisecond, clock)

	_ = limiter.Acquire(context.Background())
	clock.Advance(time.Second)
	before := clock.Now()
	_ = limiter.Acquire(context.Background())

	if waited := clock.Now().Sub(before); waited != 0 {
		t.Errorf("waited %v, want 0", waited)
	}
}

func TestLimiter_FirstCallDoesNotWait(t *testing.T) {
	clock := newFakeClock()
	limiter := New(time.Hour, clock)
	before := clock.Now()

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !clock.Now().Equal(before) {
		t.Error("first Acquire should not sleep")
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	limiter := New(time.Hour, SystemClock{})
	_ = limiter.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Acquire(ctx); err == nil {
		t.Error("Acquire() with cancelled context should fail")
	}
}

func TestLimiter_Stats(t *testing.T) {
	limiter := New(250*time.Millisecond, newFakeClock())
	for i := 0; i < 3; i++ {
		_ = limiter.Acquire(context.Background())
	}

	stats := limiter.Stats()
	if stats["calls"] != int64(3) {
		t.Errorf("calls = %v, want 3", stats["calls"])
	}
	if stats["waited_ms"] != int64(500) {
		t.Errorf("waited_ms = %v, want 500", stats["waited_ms"])
	}
}
