package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aisum/internal/summarizer"
)

// Run is one generated summary as kept in the history.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	BatchID   string    `json:"batchId,omitempty" yaml:"batchId,omitempty"`
	Key       string    `json:"key" yaml:"key"`
	Level     int       `json:"level" yaml:"level"`
	Summary   string    `json:"summary" yaml:"summary"`
	Prompt    string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Posted    bool      `json:"posted" yaml:"posted"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// SaveRun inserts run, assigning an ID and creation time when missing.
// Prompts are stored zstd-compressed.
func (db *DB) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	var batch interface{}
	if run.BatchID != "" {
		batch = run.BatchID
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO summary_runs (id, batch_id, issue_key, level, summary, prompt, prompt_size, posted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, batch, run.Key, run.Level, run.Summary, compressText(run.Prompt), len(run.Prompt),
		boolToInt(run.Posted), formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("save run for %s: %w", run.Key, err)
	}
	return nil
}

// RunFilter selects runs from the history. Zero values match everything.
type RunFilter struct {
	Key         string
	BatchID     string
	Limit       int
	WithPrompts bool
}

// Runs returns matching runs, newest first.
func (db *DB) Runs(ctx context.Context, f RunFilter) ([]Run, error) {
	query := `SELECT id, COALESCE(batch_id, ''), issue_key, level, summary, prompt, prompt_size, posted, created_at
		FROM summary_runs WHERE 1 = 1`
	var args []interface{}
	if f.Key != "" {
		query += " AND issue_key = ?"
		args = append(args, f.Key)
	}
	if f.BatchID != "" {
		query += " AND batch_id = ?"
		args = append(args, f.BatchID)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			prompt     []byte
			promptSize int
			posted     int
			created    string
		)
		if err := rows.Scan(&run.ID, &run.BatchID, &run.Key, &run.Level, &run.Summary,
			&prompt, &promptSize, &posted, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Posted = posted != 0
		if run.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse run time: %w", err)
		}
		if f.WithPrompts {
			if run.Prompt, err = decompressText(prompt, promptSize); err != nil {
				return nil, fmt.Errorf("run %s: %w", run.ID, err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// PruneRuns deletes runs created before cutoff and reports how many went.
func (db *DB) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM summary_runs WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// RunRecorder stores every summary a Summarizer produces under one batch ID.
type RunRecorder struct {
	db      *DB
	batchID string
}

// NewRunRecorder starts a new batch. Its ID is a fresh UUID.
func (db *DB) NewRunRecorder() *RunRecorder {
	return &RunRecorder{db: db, batchID: uuid.NewString()}
}

// BatchID identifies the runs recorded by r.
func (r *RunRecorder) BatchID() string {
	return r.batchID
}

// Record implements summarizer.Recorder.
func (r *RunRecorder) Record(ctx context.Context, res summarizer.Result) error {
	return r.db.SaveRun(ctx, &Run{
		BatchID: r.batchID,
		Key:     res.Key,
		Level:   res.Level,
		Summary: res.Summary,
		Prompt:  res.Prompt,
		Posted:  res.Posted,
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
