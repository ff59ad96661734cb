// Package stats accumulates named wall-clock timers for one unit of work
// (typically an HTTP request). Timers travel in the context so deep call
// sites can contribute without extra parameters.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Timer names reported by the summarize endpoint.
const (
	Cache      = "cache"
	Fetch      = "fetch"
	Generation = "generation"
	Request    = "request"
)

// Timers holds accumulated durations and call counts by name.
type Timers struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
	now    func() time.Time
}

// New creates an empty set of timers.
func New() *Timers {
	return &Timers{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
		now:    time.Now,
	}
}

type contextKey struct{}

// WithTimers attaches t to ctx.
func WithTimers(ctx context.Context, t *Timers) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the timers attached to ctx, or nil.
func FromContext(ctx context.Context) *Timers {
	t, _ := ctx.Value(contextKey{}).(*Timers)
	return t
}

// Track starts timing name and returns the function that stops it. It is a
// no-op when ctx carries no timers.
//
//	defer stats.Track(ctx, stats.Cache)()
func Track(ctx context.Context, name string) func() {
	t := FromContext(ctx)
	if t == nil {
		return func() {}
	}
	return t.Start(name)
}

// Start begins timing name; calling the returned function records the elapsed time.
func (t *Timers) Start(name string) func() {
	begin := t.now()
	return func() {
		t.Add(name, t.now().Sub(begin))
	}
}

// Add records d against name.
func (t *Timers) Add(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[name] += d
	t.counts[name]++
}

// Elapsed returns the total time recorded for name.
func (t *Timers) Elapsed(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[name]
}

// Count returns how many intervals were recorded for name.
func (t *Timers) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}

// Seconds returns the total for name in fractional seconds.
func (t *Timers) Seconds(name string) float64 {
	return t.Elapsed(name).Seconds()
}

// Names returns the recorded timer names, sorted.
func (t *Timers) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.totals))
	for name := range t.totals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
