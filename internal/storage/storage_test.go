package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aisum/internal/slogutil"
	"aisum/internal/summarizer"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "aisum.db"), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := setupTestDB(t)
	version, err := db.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion() error = %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aisum.db")
	logger := slogutil.NewDiscardLogger()
	ctx := context.Background()
	mark := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)

	db, err := Open(path, logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.SetWatermark(ctx, BotWatermark, mark); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err = Open(path, logger)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()
	got, ok, err := db.Watermark(ctx, BotWatermark)
	if err != nil || !ok {
		t.Fatalf("Watermark() = %v, %v, %v", got, ok, err)
	}
	if !got.Equal(mark) {
		t.Errorf("Watermark() = %v, want %v", got, mark)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(MemoryPath, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	if err := db.SetWatermark(context.Background(), "x", time.Now()); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}
}

func TestWatermark(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.Watermark(ctx, BotWatermark); err != nil || ok {
		t.Fatalf("Watermark() on empty db: ok=%v err=%v", ok, err)
	}

	zone := time.FixedZone("EST", -5*3600)
	first := time.Date(2024, 6, 1, 8, 0, 0, 123, zone)
	second := first.Add(36 * time.Hour)
	for _, mark := range []time.Time{first, second} {
		if err := db.SetWatermark(ctx, BotWatermark, mark); err != nil {
			t.Fatalf("SetWatermark() error = %v", err)
		}
	}
	got, ok, err := db.Watermark(ctx, BotWatermark)
	if err != nil || !ok {
		t.Fatalf("Watermark() = %v, %v", ok, err)
	}
	if !got.Equal(second) {
		t.Errorf("Watermark() = %v, want %v", got, second)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	prompt := strings.Repeat("Summarize the following issue. ", 40)

	runs := []*Run{
		{Key: "PROJ-2", Level: 2, Summary: "story", Prompt: prompt, Posted: true, CreatedAt: base},
		{Key: "PROJ-1", Level: 3, Summary: "epic", Prompt: "short", BatchID: "b1", CreatedAt: base.Add(time.Minute)},
		{Key: "PROJ-2", Level: 2, Summary: "story again", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		if r.ID == "" {
			t.Error("SaveRun() did not assign an ID")
		}
	}

	all, err := db.Runs(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	var order []string
	for _, r := range all {
		order = append(order, r.Summary)
		if r.Prompt != "" {
			t.Errorf("prompt of %s loaded without WithPrompts", r.Key)
		}
	}
	if got := strings.Join(order, ","); got != "story again,epic,story" {
		t.Errorf("Runs() order = %s", got)
	}

	story, err := db.Runs(ctx, RunFilter{Key: "PROJ-2", WithPrompts: true})
	if err != nil {
		t.Fatalf("Runs(key) error = %v", err)
	}
	if len(story) != 2 {
		t.Fatalf("Runs(key) = %d runs, want 2", len(story))
	}
	if story[1].Prompt != prompt || !story[1].Posted || story[1].Level != 2 {
		t.Errorf("round trip = %+v", story[1])
	}
	if story[0].Prompt != "" {
		t.Errorf("empty prompt = %q", story[0].Prompt)
	}

	batch, err := db.Runs(ctx, RunFilter{BatchID: "b1"})
	if err != nil || len(batch) != 1 || batch[0].Key != "PROJ-1" {
		t.Errorf("Runs(batch) = %+v, %v", batch, err)
	}

	limited, err := db.Runs(ctx, RunFilter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Errorf("Runs(limit) = %d, %v", len(limited), err)
	}
}

func TestPruneRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := db.SaveRun(ctx, &Run{Key: "PROJ-1", Summary: "s", CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}
	n, err := db.PruneRuns(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneRuns() = %d, want 2", n)
	}
	left, _ := db.Runs(ctx, RunFilter{})
	if len(left) != 1 {
		t.Errorf("remaining runs = %d, want 1", len(left))
	}
}

func TestRunRecorder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec := db.NewRunRecorder()
	other := db.NewRunRecorder()
	if rec.BatchID() == other.BatchID() {
		t.Fatal("recorders share a batch ID")
	}

	var _ summarizer.Recorder = rec
	if err := rec.Record(ctx, summarizer.Result{Key: "PROJ-1", Level: 3, Prompt: "p", Summary: "s", Posted: true}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	runs, err := db.Runs(ctx, RunFilter{BatchID: rec.BatchID(), WithPrompts: true})
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Prompt != "p" || !runs[0].Posted || runs[0].Level != 3 {
		t.Errorf("recorded runs = %+v", runs)
	}
}

func TestCompressText(t *testing.T) {
	text := strings.Repeat("abc ", 500)
	packed := compressText(text)
	if len(packed) >= len(text) {
		t.Errorf("compressed %d bytes into %d", len(text), len(packed))
	}
	got, err := decompressText(packed, len(text))
	if err != nil || got != text {
		t.Fatalf("decompressText() = %d bytes, %v", len(got), err)
	}
	if _, err := decompressText(packed, len(text)+1); err == nil {
		t.Error("size mismatch should fail")
	}
}
