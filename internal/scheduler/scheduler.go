// Package scheduler runs a job repeatedly on a schedule expression.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Outcome describes one execution of the job.
type Outcome struct {
	Started  time.Time
	Duration time.Duration
	Err      error
	Next     time.Time
}

// Succeeded reports whether the run finished without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Config controls a Runner.
type Config struct {
	// RunImmediately executes the job once before waiting for the first tick.
	RunImmediately bool
	// MaxRuns stops the runner after that many executions; zero means forever.
	MaxRuns int
}

// Runner executes a Job at the times produced by an Expression. A failed run
// is logged and the runner waits for the next scheduled time.
type Runner struct {
	expr   *Expression
	job    Job
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu   sync.Mutex
	last *Outcome
	runs int
}

// New builds a Runner. The job does not start until Run is called.
func New(expr *Expression, job Job, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		expr:   expr,
		job:    job,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Run blocks until ctx is cancelled or MaxRuns executions have happened.
// It returns ctx.Err() when cancelled and nil otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting scheduler", "schedule", r.expr.String(), "runImmediately", r.cfg.RunImmediately)

	if r.cfg.RunImmediately {
		r.RunNow(ctx)
		if r.done() {
			return nil
		}
	}
	for {
		next := r.expr.Next(r.now())
		wait := next.Sub(r.now())
		r.logger.Info("Next run scheduled", "at", next.Format(time.RFC3339), "in", FormatDuration(wait))
		select {
		case <-ctx.Done():
			r.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-r.after(wait):
		}
		r.RunNow(ctx)
		if r.done() {
			return nil
		}
	}
}

// RunNow executes the job once, outside the schedule.
func (r *Runner) RunNow(ctx context.Context) Outcome {
	start := r.now()
	r.logger.Info("Executing scheduled job", "schedule", r.expr.String())
	err := r.job(ctx)
	out := Outcome{Started: start, Duration: r.now().Sub(start), Err: err}
	out.Next = r.expr.Next(r.now())

	if err != nil {
		r.logger.Error("Scheduled job failed", "error", err, "duration", out.Duration.String())
	} else {
		r.logger.Info("Scheduled job completed", "duration", out.Duration.String())
	}

	r.mu.Lock()
	r.last = &out
	r.runs++
	r.mu.Unlock()
	return out
}

// Last returns the most recent outcome, or nil before the first run.
func (r *Runner) Last() *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	out := *r.last
	return &out
}

// Runs returns the number of executions so far.
func (r *Runner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func (r *Runner) done() bool {
	return r.cfg.MaxRuns > 0 && r.Runs() >= r.cfg.MaxRuns
}
