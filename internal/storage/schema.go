package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// migrations[i] upgrades a database from version i to i+1.
var migrations = []func(tx *sql.Tx) error{
	createStateTables,
}

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	version, err := db.schemaVersion()
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations", "from", version, "to", currentSchemaVersion, "path", db.path)
	return db.WithTx(context.Background(), func(tx *sql.Tx) error {
		for v := version; v < currentSchemaVersion; v++ {
			if err := migrations[v](tx); err != nil {
				return fmt.Errorf("migration to version %d: %w", v+1, err)
			}
		}
		return setSchemaVersion(tx, currentSchemaVersion)
	})
}

// schemaVersion returns 0 for a fresh database.
func (db *DB) schemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createStateTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS watermarks (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS summary_runs (
			id TEXT PRIMARY KEY,
			batch_id TEXT,
			issue_key TEXT NOT NULL,
			level INTEGER NOT NULL,
			summary TEXT NOT NULL,
			prompt BLOB,
			prompt_size INTEGER NOT NULL,
			posted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_summary_runs_key ON summary_runs(issue_key, created_at);
		CREATE INDEX IF NOT EXISTS idx_summary_runs_batch ON summary_runs(batch_id);
	`)
	return err
}
