// Package auth mints, stores and checks bearer tokens for the HTTP API.
package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ManagerConfig configures the auth manager
type ManagerConfig struct {
	Enabled bool
	// StaticToken is accepted with admin scope. ${VAR} and $VAR are expanded.
	StaticToken  string
	RateLimiting RateLimitConfig
}

// Manager authenticates requests against the static token and stored tokens.
type Manager struct {
	config      ManagerConfig
	store       *TokenStore
	rateLimiter *RateLimiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a manager. db may be nil when only the static token is used.
func NewManager(config ManagerConfig, db *sql.DB, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		config:      config,
		rateLimiter: NewRateLimiter(config.RateLimiting, logger),
		logger:      logger,
		now:         time.Now,
	}
	if db != nil {
		m.store = NewTokenStore(db, logger)
		if err := m.store.InitSchema(); err != nil {
			return nil, err
		}
	}
	logger.Debug("Auth manager initialized",
		"enabled", config.Enabled,
		"staticToken", config.StaticToken != "",
		"rateLimiting", config.RateLimiting.Enabled)
	return m, nil
}

// Enabled reports whether requests must carry a token.
func (m *Manager) Enabled() bool {
	return m.config.Enabled
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// Authenticate checks a bearer secret for the required scope.
func (m *Manager) Authenticate(ctx context.Context, secret string, required Scope) *Result {
	if !m.config.Enabled {
		return &Result{Authenticated: true, Scopes: []Scope{ScopeAdmin}}
	}
	if secret == "" {
		return &Result{ErrorCode: ErrCodeMissingToken, ErrorMessage: "Authorization header required"}
	}
	if static := expandEnv(m.config.StaticToken); static != "" && secret == static {
		return &Result{Authenticated: true, TokenID: "static", TokenName: "Static Token", Scopes: []Scope{ScopeAdmin}}
	}

	tok := m.lookup(ctx, secret)
	switch {
	case tok == nil:
		return &Result{ErrorCode: ErrCodeInvalidToken, ErrorMessage: "Invalid API token"}
	case tok.Revoked:
		return &Result{ErrorCode: ErrCodeRevokedToken, ErrorMessage: "API token has been revoked"}
	case tok.IsExpired(m.now()):
		return &Result{ErrorCode: ErrCodeExpiredToken, ErrorMessage: "API token has expired"}
	case !tok.HasScope(required):
		return &Result{ErrorCode: ErrCodeInsufficientScope, ErrorMessage: "Insufficient scope for this operation"}
	}

	if ok, retryAfter := m.rateLimiter.Allow(tok.ID, tok.RateLimit); !ok {
		m.logger.Info("Rate limited", "tokenId", tok.ID, "retryAfter", retryAfter)
		return &Result{RateLimited: true, RetryAfter: retryAfter,
			ErrorCode: ErrCodeRateLimited, ErrorMessage: "Rate limit exceeded"}
	}

	if err := m.store.TouchLastUsed(ctx, tok.ID, m.now()); err != nil {
		m.logger.Warn("Failed to update last used", "tokenId", tok.ID, "error", err)
	}
	return &Result{Authenticated: true, TokenID: tok.ID, TokenName: tok.Name, Scopes: tok.Scopes}
}

func (m *Manager) lookup(ctx context.Context, secret string) *APIToken {
	if m.store == nil {
		return nil
	}
	candidates, err := m.store.GetByPrefix(ctx, LookupPrefix(secret))
	if err != nil {
		m.logger.Error("Failed to look up token", "error", err)
		return nil
	}
	for _, t := range candidates {
		if VerifySecret(secret, t.TokenHash) {
			return t
		}
	}
	return nil
}

// CreateToken mints a token and returns it with its one-time secret.
func (m *Manager) CreateToken(ctx context.Context, opts CreateOptions) (*APIToken, string, error) {
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	if m.store == nil {
		return nil, "", ErrStoreNotInitialized
	}
	id, err := GenerateID()
	if err != nil {
		return nil, "", err
	}
	secret, prefix, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	now := m.now()
	tok := &APIToken{
		ID:          id,
		Name:        opts.Name,
		TokenHash:   hash,
		TokenPrefix: prefix,
		Scopes:      opts.Scopes,
		RateLimit:   opts.RateLimit,
		CreatedAt:   now,
		CreatedBy:   opts.CreatedBy,
	}
	if opts.TTL > 0 {
		exp := now.Add(opts.TTL)
		tok.ExpiresAt = &exp
	}
	if err := m.store.Save(ctx, tok); err != nil {
		return nil, "", err
	}
	m.logger.Info("API token created", "id", tok.ID, "name", tok.Name)
	tok.TokenHash = ""
	return tok, secret, nil
}

// RevokeToken disables a stored token.
func (m *Manager) RevokeToken(ctx context.Context, id string) error {
	if m.store == nil {
		return ErrStoreNotInitialized
	}
	if err := m.store.Revoke(ctx, id, m.now()); err != nil {
		return err
	}
	m.rateLimiter.Reset(id)
	m.logger.Info("API token revoked", "id", id)
	return nil
}

// ListTokens returns stored tokens with hashes removed.
func (m *Manager) ListTokens(ctx context.Context, includeRevoked bool) ([]*APIToken, error) {
	if m.store == nil {
		return nil, ErrStoreNotInitialized
	}
	tokens, err := m.store.List(ctx, includeRevoked)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		t.TokenHash = ""
	}
	return tokens, nil
}

// StartBackgroundTasks starts background maintenance tasks
func (m *Manager) StartBackgroundTasks(ctx context.Context) {
	m.rateLimiter.StartCleanup(ctx)
}
