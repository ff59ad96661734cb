// Package bot runs incremental summarization batches. Each batch picks up
// labelled issues updated since the stored watermark, summarizes them with
// write-back, and advances the watermark only when every issue succeeded.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aisum/internal/storage"
	"aisum/internal/summarizer"
)

// DefaultLookback is how far back the first batch reaches when neither a
// stored watermark nor a configured start exists.
const DefaultLookback = 24 * time.Hour

// Config controls batch selection.
type Config struct {
	BatchLimit int
	MaxDepth   int
	// Since is used when no watermark has been stored yet.
	Since time.Time
}

// Report describes one batch.
type Report struct {
	BatchID   string    `json:"batchId" yaml:"batchId"`
	Since     time.Time `json:"since" yaml:"since"`
	Watermark time.Time `json:"watermark" yaml:"watermark"`
	Keys      []string  `json:"keys" yaml:"keys"`
	Generated int       `json:"generated" yaml:"generated"`
	Posted    int       `json:"posted" yaml:"posted"`
	Failed    string    `json:"failed,omitempty" yaml:"failed,omitempty"`
	Duration  float64   `json:"durationSeconds" yaml:"durationSeconds"`
}

// Bot ties a summarizer to the state database.
type Bot struct {
	sum    *summarizer.Summarizer
	db     *storage.DB
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Bot.
func New(sum *summarizer.Summarizer, db *storage.DB, cfg Config, logger *slog.Logger) *Bot {
	return &Bot{sum: sum, db: db, cfg: cfg, logger: logger, now: time.Now}
}

// Since returns where the next batch starts.
func (b *Bot) Since(ctx context.Context) (time.Time, error) {
	mark, ok, err := b.db.Watermark(ctx, storage.BotWatermark)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return mark, nil
	}
	if !b.cfg.Since.IsZero() {
		return b.cfg.Since, nil
	}
	return b.now().Add(-DefaultLookback), nil
}

// RunBatch selects and summarizes one batch. On the first failure it stops,
// leaves the watermark where it was and returns the partial report with the
// error, so the next batch retries the same window.
func (b *Bot) RunBatch(ctx context.Context) (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.now()
	since, err := b.Since(ctx)
	if err != nil {
		return nil, err
	}
	keys, mark, err := b.sum.SelectBatch(ctx, since, b.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}

	rec := &countingRecorder{next: b.db.NewRunRecorder()}
	b.sum.SetRecorder(rec)
	defer b.sum.SetRecorder(nil)

	report := &Report{BatchID: rec.next.BatchID(), Since: since, Watermark: since, Keys: keys}
	defer func() {
		report.Generated, report.Posted = rec.counts()
		report.Duration = b.now().Sub(start).Seconds()
	}()

	for _, key := range keys {
		issue, err := b.sum.Cache().Get(ctx, key)
		if err == nil {
			_, err = b.sum.Summarize(ctx, issue, summarizer.Options{MaxDepth: b.cfg.MaxDepth, SendUpdates: true})
		}
		if err != nil {
			report.Failed = key
			b.logger.Error("Batch stopped", "key", key, "error", err, "batchId", report.BatchID)
			return report, fmt.Errorf("batch %s: %s: %w", report.BatchID, key, err)
		}
	}

	if err := b.db.SetWatermark(ctx, storage.BotWatermark, mark); err != nil {
		return report, err
	}
	report.Watermark = mark
	b.logger.Info("Batch complete",
		"batchId", report.BatchID, "issues", len(keys), "watermark", mark.Format(time.RFC3339),
		"keys", strings.Join(keys, ", "))
	return report, nil
}

// countingRecorder forwards to the run store and tallies what it saw.
type countingRecorder struct {
	next *storage.RunRecorder

	mu        sync.Mutex
	generated int
	posted    int
}

func (c *countingRecorder) Record(ctx context.Context, r summarizer.Result) error {
	c.mu.Lock()
	c.generated++
	if r.Posted {
		c.posted++
	}
	c.mu.Unlock()
	return c.next.Record(ctx, r)
}

func (c *countingRecorder) counts() (generated, posted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generated, c.posted
}

// ParseSince reads a batch start as RFC 3339, a date, or a duration before now
// such as "48h".
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid start time %q: want RFC 3339, YYYY-MM-DD or a duration", s)
}
