package genai

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"aisum/internal/errors"
	"aisum/internal/slogutil"
	"aisum/internal/testutil"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newRetrying(gen Generator, policy RetryPolicy) (*Retrying, *recordedSleeps) {
	sleeps := &recordedSleeps{}
	r := NewRetrying(gen, policy, slogutil.NewDiscardLogger()).WithSleep(sleeps.sleep)
	return r, sleeps
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	gen := testutil.NewScriptedGenerator("  the summary  ")
	gen.FailNext(
		&TransientError{StatusCode: 503},
		&TransientError{StatusCode: 429},
		&TransientError{StatusCode: 502},
	)
	r, sleeps := newRetrying(gen, DefaultRetryPolicy())

	out, err := r.Generate(context.Background(), "prompt", []string{EndOfText})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "  the summary  " {
		t.Errorf("Generate() = %q", out)
	}
	if gen.Calls() != 4 {
		t.Errorf("calls = %d, want 4", gen.Calls())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeps.delays, want)
	}
	for i := range want {
		if sleeps.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleeps.delays[i], want[i])
		}
	}
	if stop := gen.LastStop(); len(stop) != 1 || stop[0] != EndOfText {
		t.Errorf("stop = %v", stop)
	}
}

func TestRetrying_BackoffIsCapped(t *testing.T) {
	gen := testutil.NewScriptedGenerator("ok")
	for i := 0; i < 9; i++ {
		gen.FailNext(&TransientError{StatusCode: 503})
	}
	r, sleeps := newRetrying(gen, DefaultRetryPolicy())

	if _, err := r.Generate(context.Background(), "p", nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for i, d := range sleeps.delays {
		if d > DefaultMaxBackoff {
			t.Errorf("delay[%d] = %v exceeds cap", i, d)
		}
	}
	if last := sleeps.delays[len(sleeps.delays)-1]; last != DefaultMaxBackoff {
		t.Errorf("last delay = %v, want %v", last, DefaultMaxBackoff)
	}
}

func TestRetrying_NonTransientIsNotRetried(t *testing.T) {
	gen := testutil.NewScriptedGenerator("ok")
	fatal := errors.Newf(errors.RemoteError, "bad request")
	gen.FailNext(fatal)
	r, sleeps := newRetrying(gen, DefaultRetryPolicy())

	_, err := r.Generate(context.Background(), "p", nil)
	if !stderrors.Is(err, fatal) {
		t.Fatalf("Generate() error = %v, want %v", err, fatal)
	}
	if gen.Calls() != 1 || len(sleeps.delays) != 0 {
		t.Errorf("calls = %d sleeps = %d, want 1 and 0", gen.Calls(), len(sleeps.delays))
	}
}

func TestRetrying_ExhaustionWrapsLastError(t *testing.T) {
	gen := testutil.NewScriptedGenerator("never")
	last := &TransientError{StatusCode: 503, Message: "third"}
	gen.FailNext(&TransientError{StatusCode: 503}, &TransientError{StatusCode: 503}, last)
	r, sleeps := newRetrying(gen, RetryPolicy{MaxAttempts: 3})

	_, err := r.Generate(context.Background(), "p", nil)
	if !errors.HasCode(err, errors.TransientService) {
		t.Fatalf("Generate() error = %v, want TRANSIENT_SERVICE", err)
	}
	var transient *TransientError
	if !stderrors.As(err, &transient) || transient != last {
		t.Errorf("error should wrap the last transient failure, got %v", err)
	}
	if gen.Calls() != 3 {
		t.Errorf("calls = %d, want 3", gen.Calls())
	}
	if len(sleeps.delays) != 2 {
		t.Errorf("sleeps = %d, want 2 (no sleep after the final attempt)", len(sleeps.delays))
	}
}

func TestRetrying_DefaultPolicyGivesUpAfterHundredAttempts(t *testing.T) {
	gen := testutil.NewScriptedGenerator("never")
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		gen.FailNext(&TransientError{StatusCode: 503})
	}
	last := &TransientError{StatusCode: 503, Message: "final"}
	gen.FailNext(last)
	r, sleeps := newRetrying(gen, DefaultRetryPolicy())

	_, err := r.Generate(context.Background(), "p", nil)
	var transient *TransientError
	if !errors.HasCode(err, errors.TransientService) || !stderrors.As(err, &transient) || transient != last {
		t.Fatalf("Generate() error = %v, want the last transient failure", err)
	}
	if gen.Calls() != 100 {
		t.Errorf("calls = %d, want 100", gen.Calls())
	}
	if len(sleeps.delays) != 99 {
		t.Errorf("sleeps = %d, want 99", len(sleeps.delays))
	}
}

func TestRetrying_CancelledWhileBackingOff(t *testing.T) {
	gen := testutil.NewScriptedGenerator("ok")
	gen.FailNext(&TransientError{StatusCode: 503})
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrying(gen, DefaultRetryPolicy(), nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := r.Generate(ctx, "p", nil)
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
	if gen.Calls() != 1 {
		t.Errorf("calls = %d, want 1", gen.Calls())
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepCtx() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !stderrors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() error = %v, want context.Canceled", err)
	}
}
