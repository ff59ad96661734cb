package bot

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"aisum/internal/config"
	"aisum/internal/errors"
	"aisum/internal/issues"
	"aisum/internal/slogutil"
	"aisum/internal/storage"
	"aisum/internal/summarizer"
	"aisum/internal/testutil"
	"aisum/internal/textblock"
)

var (
	now   = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

var titleKey = regexp.MustCompile(`Title: (\S+) - `)

type env struct {
	tracker *testutil.FakeTracker
	gen     *testutil.ScriptedGenerator
	db      *storage.DB
	bot     *Bot
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	tracker := testutil.NewFakeTracker()
	tracker.Now = func() time.Time { return now }
	gen := testutil.NewScriptedGenerator("Work is on track.")
	cache := issues.NewCache(tracker, 100, logger)
	sum, err := summarizer.New(cache, gen, summarizer.Config{AllowedProjects: []string{"PROJ"}}, logger)
	if err != nil {
		t.Fatalf("summarizer.New() error = %v", err)
	}
	db, err := storage.Open(storage.MemoryPath, logger)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := New(sum, db, cfg, logger)
	b.now = func() time.Time { return now }
	return &env{tracker: tracker, gen: gen, db: db, bot: b}
}

func (e *env) story(key string, updated time.Time, labels ...string) {
	e.tracker.Add(&testutil.FakeIssue{Fields: issues.Fields{
		Key: key, Summary: "Summary " + key, IssueType: "Story", ProjectKey: "PROJ",
		Status: "In Progress", Labels: labels, Updated: updated,
	}})
}

func TestRunBatch(t *testing.T) {
	e := newEnv(t, Config{BatchLimit: 10, Since: start})
	e.story("PROJ-2", start.Add(48*time.Hour), summarizer.DefaultLabel)
	e.story("PROJ-1", start.Add(24*time.Hour), summarizer.DefaultLabel)
	e.story("PROJ-3", start.Add(-24*time.Hour), summarizer.DefaultLabel)
	e.story("PROJ-4", start.Add(24*time.Hour))
	ctx := context.Background()

	report, err := e.bot.RunBatch(ctx)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if got := strings.Join(report.Keys, ","); got != "PROJ-1,PROJ-2" {
		t.Errorf("keys = %s, want PROJ-1,PROJ-2", got)
	}
	if report.Generated != 2 || report.Posted != 2 {
		t.Errorf("generated/posted = %d/%d, want 2/2", report.Generated, report.Posted)
	}
	if want := start.Add(48 * time.Hour); !report.Watermark.Equal(want) {
		t.Errorf("report watermark = %v, want %v", report.Watermark, want)
	}

	mark, ok, err := e.db.Watermark(ctx, storage.BotWatermark)
	if err != nil || !ok || !mark.Equal(report.Watermark) {
		t.Errorf("stored watermark = %v, %v, %v", mark, ok, err)
	}
	for _, key := range report.Keys {
		if !strings.Contains(e.tracker.Issue(key).Fields.StatusSummary, "Work is on track.") {
			t.Errorf("%s summary not written back", key)
		}
	}

	runs, err := e.db.Runs(ctx, storage.RunFilter{BatchID: report.BatchID})
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("recorded runs = %d, want 2", len(runs))
	}

	since, err := e.bot.Since(ctx)
	if err != nil || !since.Equal(report.Watermark) {
		t.Errorf("Since() = %v, %v; want the stored watermark", since, err)
	}
}

func TestRunBatch_EpicReadsChildSummaries(t *testing.T) {
	e := newEnv(t, Config{BatchLimit: 10, Since: start, MaxDepth: config.DefaultConfig().Bot.MaxDepth})
	e.gen.Reply = func(prompt string) string {
		return "Fresh summary of " + titleKey.FindStringSubmatch(prompt)[1] + "."
	}
	lastMonth := start.Add(-20 * 24 * time.Hour)

	e.tracker.Add(&testutil.FakeIssue{Fields: issues.Fields{
		Key: "PROJ-A", Summary: "Checkout", IssueType: "Epic", ProjectKey: "PROJ",
		Status: "In Progress", Labels: []string{summarizer.DefaultLabel}, Updated: lastMonth,
	}})
	e.tracker.Add(&testutil.FakeIssue{
		Fields: issues.Fields{
			Key: "PROJ-S1", Summary: "Card form", IssueType: "Story", ProjectKey: "PROJ",
			Status: "In Progress", Labels: []string{summarizer.DefaultLabel}, Updated: now,
		},
		Links: issues.Links{EpicLink: "PROJ-A"},
	})
	e.tracker.Add(&testutil.FakeIssue{
		Fields: issues.Fields{
			Key: "PROJ-S2", Summary: "Receipts", IssueType: "Story", ProjectKey: "PROJ",
			Status: "Done", Labels: []string{summarizer.DefaultLabel}, Updated: lastMonth,
			StatusSummary: textblock.Wrap("Cached summary of PROJ-S2."),
		},
		Links: issues.Links{EpicLink: "PROJ-A"},
		Changelog: []issues.ChangelogEntry{{
			Author: "AI Summarizer", Created: lastMonth,
			Changes: []issues.Change{{Field: issues.ChangelogFieldStatusSummary}},
		}},
	})

	report, err := e.bot.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if got := strings.Join(report.Keys, ","); got != "PROJ-S1,PROJ-A" {
		t.Fatalf("keys = %s, want PROJ-S1,PROJ-A", got)
	}
	prompts := e.gen.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(prompts))
	}
	for _, want := range []string{"Fresh summary of PROJ-S1.", "Cached summary of PROJ-S2."} {
		if !strings.Contains(prompts[1], want) {
			t.Errorf("epic prompt missing %q:\n%s", want, prompts[1])
		}
	}
}

func TestRunBatch_FailureKeepsWatermark(t *testing.T) {
	e := newEnv(t, Config{BatchLimit: 10, Since: start})
	e.story("PROJ-1", start.Add(24*time.Hour), summarizer.DefaultLabel)
	e.story("PROJ-2", start.Add(48*time.Hour), summarizer.DefaultLabel)
	e.gen.FailNext(errors.Newf(errors.RemoteError, "model unavailable"))
	ctx := context.Background()

	report, err := e.bot.RunBatch(ctx)
	if !errors.HasCode(err, errors.RemoteError) {
		t.Fatalf("RunBatch() error = %v, want REMOTE_ERROR", err)
	}
	if report == nil || report.Failed != "PROJ-1" {
		t.Fatalf("report = %+v, want failure on PROJ-1", report)
	}
	if report.Generated != 0 || !report.Watermark.Equal(start) {
		t.Errorf("report = %+v", report)
	}
	if _, ok, _ := e.db.Watermark(ctx, storage.BotWatermark); ok {
		t.Error("watermark must not advance after a failed batch")
	}
	if len(e.tracker.Updates()) != 0 {
		t.Errorf("updates = %d, want 0", len(e.tracker.Updates()))
	}

	report, err = e.bot.RunBatch(ctx)
	if err != nil {
		t.Fatalf("retry RunBatch() error = %v", err)
	}
	if !report.Since.Equal(start) || report.Generated != 2 {
		t.Errorf("retry report = %+v, want the same window fully processed", report)
	}
}

func TestSince_Defaults(t *testing.T) {
	e := newEnv(t, Config{})
	since, err := e.bot.Since(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(-DefaultLookback); !since.Equal(want) {
		t.Errorf("Since() = %v, want %v", since, want)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2024-06-01T08:30:00Z", time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), false},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"48h", now.Add(-48 * time.Hour), false},
		{"last tuesday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSince(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseSince() = %v, want %v", got, tt.want)
			}
		})
	}
}
