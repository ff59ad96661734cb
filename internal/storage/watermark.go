package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BotWatermark names the high-water mark of the periodic batch loop.
const BotWatermark = "bot"

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Watermark returns the stored time for name. ok is false when none was saved.
func (db *DB) Watermark(ctx context.Context, name string) (t time.Time, ok bool, err error) {
	var value string
	err = db.conn.QueryRowContext(ctx, "SELECT value FROM watermarks WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", name, err)
	}
	t, err = parseTime(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %s: %w", name, err)
	}
	return t, true, nil
}

// SetWatermark stores t under name, replacing any previous value.
func (db *DB) SetWatermark(ctx context.Context, name string, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO watermarks (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, name, formatTime(t), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", name, err)
	}
	db.logger.Debug("Watermark saved", "name", name, "value", t.Format(time.RFC3339))
	return nil
}
