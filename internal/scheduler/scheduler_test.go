package scheduler

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"aisum/internal/slogutil"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		expr    string
		want    time.Duration
		wantErr bool
	}{
		{"every 5m", 5 * time.Minute, false},
		{"every 5 minutes", 5 * time.Minute, false},
		{"every 2h", 2 * time.Hour, false},
		{"Every 2 Hours", 2 * time.Hour, false},
		{"every 1d", 24 * time.Hour, false},
		{"every 1 day", 24 * time.Hour, false},
		{"every 1 minute", time.Minute, false},
		{"every 30s", 0, true},
		{"every 90 seconds", 90 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if e.Kind != KindInterval || e.Interval != tt.want {
				t.Errorf("Parse() = %s %v, want interval %v", e.Kind, e.Interval, tt.want)
			}
			if e.String() != tt.expr {
				t.Errorf("String() = %q, want the original text", e.String())
			}
		})
	}
}

func TestParseDaily(t *testing.T) {
	tests := []struct {
		expr      string
		hour, min int
		wantErr   bool
	}{
		{"daily at 09:00", 9, 0, false},
		{"daily at 9:05", 9, 5, false},
		{"daily at 23:59", 23, 59, false},
		{"daily at 00:00", 0, 0, false},
		{"daily at 25:00", 0, 0, true},
		{"daily at 12:60", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if e.Kind != KindDaily || e.Hour != tt.hour || e.Minute != tt.min {
				t.Errorf("Parse() = %s %02d:%02d", e.Kind, e.Hour, e.Minute)
			}
		})
	}
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"0 * * * *", false},
		{"0 0 1 * *", false},
		{"*/5 * * * *", false},
		{"0 9-17 * * 1-5", false},
		{"0 0 1,15 * *", false},
		{"invalid cron", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"* * 32 * *", true},
		{"* * * 13 *", true},
		{"* * * * 7", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if e.Kind != KindCron || e.Cron == nil {
				t.Errorf("Parse() kind = %s", e.Kind)
			}
		})
	}
}

func TestParseCronField(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		min, max int
		want     []int
		wantErr  bool
	}{
		{"wildcard", "*", 0, 5, []int{0, 1, 2, 3, 4, 5}, false},
		{"single value", "3", 0, 5, []int{3}, false},
		{"list is sorted and deduplicated", "5,1,3,1", 0, 5, []int{1, 3, 5}, false},
		{"range", "1-3", 0, 5, []int{1, 2, 3}, false},
		{"range with step", "0-10/2", 0, 10, []int{0, 2, 4, 6, 8, 10}, false},
		{"step", "*/2", 0, 6, []int{0, 2, 4, 6}, false},
		{"out of range", "10", 0, 5, nil, true},
		{"reversed range", "5-1", 0, 10, nil, true},
		{"range out of bounds", "0-15", 0, 10, nil, true},
		{"invalid value", "abc", 0, 5, nil, true},
		{"zero step", "*/0", 0, 5, nil, true},
		{"bad range step", "1-5/x", 0, 10, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCronField(tt.field, tt.min, tt.max)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCronField() error = %v", err)
			}
			if !sliceEqual(got, tt.want) {
				t.Errorf("parseCronField() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC) // a Wednesday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"every 1h", time.Date(2025, 1, 1, 11, 30, 0, 0, time.UTC)},
		{"daily at 12:00", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"daily at 10:30", time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)},
		{"daily at 02:00", time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 1, 1, 10, 45, 0, 0, time.UTC)},
		{"0 9 * * 6", time.Date(2025, 1, 4, 9, 0, 0, 0, time.UTC)},
		{"0 0 1 3 *", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := e.Next(from); !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		dur  time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{48 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.dur); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.dur, got, tt.want)
		}
	}
}

// fakeClock advances only when the runner waits.
type fakeClock struct {
	t     time.Time
	waits []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) after(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	c.t = c.t.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.t
	return ch
}

func newTestRunner(t *testing.T, expr string, job Job, cfg Config) (*Runner, *fakeClock) {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := New(e, job, cfg, slogutil.NewDiscardLogger())
	r.now = clock.now
	r.after = clock.after
	return r, clock
}

func TestRunner_MaxRuns(t *testing.T) {
	var ran []time.Time
	var clock *fakeClock
	r, clock := newTestRunner(t, "every 30m", func(ctx context.Context) error {
		ran = append(ran, clock.now())
		return nil
	}, Config{MaxRuns: 3})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("runs = %d, want 3", len(ran))
	}
	for i, at := range ran {
		want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(i+1) * 30 * time.Minute)
		if !at.Equal(want) {
			t.Errorf("run %d at %v, want %v", i, at, want)
		}
	}
	if r.Runs() != 3 {
		t.Errorf("Runs() = %d", r.Runs())
	}
}

func TestRunner_RunImmediatelyAndFailure(t *testing.T) {
	boom := stderrors.New("boom")
	calls := 0
	r, clock := newTestRunner(t, "every 1h", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}, Config{RunImmediately: true, MaxRuns: 2})

	if r.Last() != nil {
		t.Error("Last() before any run should be nil")
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (a failure does not stop the runner)", calls)
	}
	if len(clock.waits) != 1 || clock.waits[0] != time.Hour {
		t.Errorf("waits = %v, want [1h]", clock.waits)
	}
	last := r.Last()
	if last == nil || !last.Succeeded() {
		t.Errorf("Last() = %+v, want success", last)
	}
}

func TestRunner_RunNowRecordsError(t *testing.T) {
	boom := stderrors.New("boom")
	r, _ := newTestRunner(t, "every 1h", func(ctx context.Context) error { return boom }, Config{})
	out := r.RunNow(context.Background())
	if !stderrors.Is(out.Err, boom) || out.Succeeded() {
		t.Errorf("RunNow() = %+v", out)
	}
	want := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	if !out.Next.Equal(want) {
		t.Errorf("Next = %v, want %v", out.Next, want)
	}
}

func TestRunner_Cancel(t *testing.T) {
	e, err := Parse("every 1h")
	if err != nil {
		t.Fatal(err)
	}
	r := New(e, func(ctx context.Context) error { return nil }, Config{}, slogutil.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if r.Runs() != 0 {
		t.Errorf("Runs() = %d, want 0", r.Runs())
	}
}

func sliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
