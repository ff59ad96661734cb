package stats

import (
	"context"
	"testing"
	"time"
)

func TestTrack_AccumulatesIntoContextTimers(t *testing.T) {
	timers := New()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timers.now = func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}
	ctx := WithTimers(context.Background(), timers)

	for i := 0; i < 2; i++ {
		stop := Track(ctx, Cache)
		stop()
	}

	if got := timers.Elapsed(Cache); got != 500*time.Millisecond {
		t.Errorf("Elapsed(cache) = %v, want 500ms", got)
	}
	if got := timers.Count(Cache); got != 2 {
		t.Errorf("Count(cache) = %d, want 2", got)
	}
	if got := timers.Seconds(Cache); got != 0.5 {
		t.Errorf("Seconds(cache) = %v, want 0.5", got)
	}
}

func TestTrack_NoTimersIsNoop(t *testing.T) {
	stop := Track(context.Background(), Generation)
	stop()
	if FromContext(context.Background()) != nil {
		t.Error("FromContext on bare context should be nil")
	}
}

func TestNames(t *testing.T) {
	timers := New()
	timers.Add(Request, time.Second)
	timers.Add(Fetch, time.Second)

	names := timers.Names()
	if len(names) != 2 || names[0] != Fetch || names[1] != Request {
		t.Errorf("Names() = %v", names)
	}
}
