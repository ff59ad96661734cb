package genai

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"aisum/internal/errors"
	"aisum/internal/slogutil"
)

// Retry defaults for the generation service.
const (
	DefaultMaxAttempts    = 100
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 60 * time.Second
)

// RetryPolicy bounds how a Retrying generator backs off.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 100 attempts, backing off from 1s to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Retrying re-invokes a Generator while it fails with *TransientError.
type Retrying struct {
	inner  Generator
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ Generator = (*Retrying)(nil)

// NewRetrying wraps inner. Zero policy fields take their defaults.
func NewRetrying(inner Generator, policy RetryPolicy, logger *slog.Logger) *Retrying {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger, sleep: sleepCtx}
}

// WithSleep replaces the function used to wait between attempts.
func (r *Retrying) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retrying {
	r.sleep = sleep
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Generate calls the wrapped generator until it succeeds, fails with a
// non-transient error, or the attempt budget runs out.
func (r *Retrying) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	delay := r.policy.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		out, err := r.inner.Generate(ctx, prompt, stop)
		if err == nil {
			return out, nil
		}
		var transient *TransientError
		if !stderrors.As(err, &transient) {
			return "", err
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}
		r.logger.Warn("Generation failed, backing off",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
		if delay > r.policy.MaxBackoff {
			delay = r.policy.MaxBackoff
		}
	}
	return "", errors.New(errors.TransientService,
		fmt.Sprintf("generation failed after %d attempts", r.policy.MaxAttempts), lastErr)
}
