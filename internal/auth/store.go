package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// TokenStore persists API tokens in SQLite.
type TokenStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTokenStore wraps db. Call InitSchema before use.
func NewTokenStore(db *sql.DB, logger *slog.Logger) *TokenStore {
	return &TokenStore{db: db, logger: logger}
}

// InitSchema creates the required tables if they don't exist
func (s *TokenStore) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS api_tokens (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			token_prefix TEXT NOT NULL,
			scopes TEXT NOT NULL,
			rate_limit INTEGER,
			expires_at TEXT,
			created_at TEXT NOT NULL,
			created_by TEXT,
			last_used_at TEXT,
			revoked INTEGER NOT NULL DEFAULT 0,
			revoked_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_api_tokens_prefix ON api_tokens(token_prefix);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

const tokenColumns = `id, name, token_hash, token_prefix, scopes, rate_limit, expires_at,
	created_at, created_by, last_used_at, revoked, revoked_at`

// Save inserts a new token.
func (s *TokenStore) Save(ctx context.Context, t *APIToken) error {
	scopes, err := json.Marshal(t.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO api_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.TokenHash, t.TokenPrefix, string(scopes), t.RateLimit,
		timePtr(t.ExpiresAt), t.CreatedAt.UTC().Format(time.RFC3339), nullable(t.CreatedBy),
		timePtr(t.LastUsedAt), boolToInt(t.Revoked), timePtr(t.RevokedAt))
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	s.logger.Debug("API token saved", "id", t.ID, "name", t.Name)
	return nil
}

// GetByID retrieves a token by its ID
func (s *TokenStore) GetByID(ctx context.Context, id string) (*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query token: %w", err)
	}
	tokens, err := scanTokens(rows)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrTokenNotFound
	}
	return tokens[0], nil
}

// GetByPrefix returns the tokens whose stored prefix matches, usually one.
func (s *TokenStore) GetByPrefix(ctx context.Context, prefix string) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE token_prefix = ?`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query by prefix: %w", err)
	}
	return scanTokens(rows)
}

// List returns stored tokens, newest first.
func (s *TokenStore) List(ctx context.Context, includeRevoked bool) ([]*APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM api_tokens`
	if !includeRevoked {
		query += " WHERE revoked = 0"
	}
	query += " ORDER BY created_at DESC, id"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return scanTokens(rows)
}

// Revoke marks a token revoked at the given time.
func (s *TokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked = 1, revoked_at = ? WHERE id = ?`, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// TouchLastUsed updates only the last_used_at timestamp
func (s *TokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, at.UTC().Format(time.RFC3339), id)
	return err
}

func scanTokens(rows *sql.Rows) ([]*APIToken, error) {
	defer func() { _ = rows.Close() }()
	var out []*APIToken
	for rows.Next() {
		var (
			t                                             APIToken
			scopes                                        string
			rateLimit                                     sql.NullInt64
			expiresAt, createdAt, createdBy, lastUsed, rv sql.NullString
			revoked                                       int
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.TokenHash, &t.TokenPrefix, &scopes, &rateLimit,
			&expiresAt, &createdAt, &createdBy, &lastUsed, &revoked, &rv); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if err := json.Unmarshal([]byte(scopes), &t.Scopes); err != nil {
			return nil, fmt.Errorf("unmarshal scopes: %w", err)
		}
		if rateLimit.Valid {
			n := int(rateLimit.Int64)
			t.RateLimit = &n
		}
		t.ExpiresAt = parseNullTime(expiresAt)
		if c := parseNullTime(createdAt); c != nil {
			t.CreatedAt = *c
		}
		t.CreatedBy = createdBy.String
		t.LastUsedAt = parseNullTime(lastUsed)
		t.Revoked = revoked != 0
		t.RevokedAt = parseNullTime(rv)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func timePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
