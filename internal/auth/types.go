package auth

import (
	"time"
)

// Scope is a permission granted to an API token.
type Scope string

const (
	// ScopeRead allows health and status requests.
	ScopeRead Scope = "read"
	// ScopeSummarize allows generating summaries.
	ScopeSummarize Scope = "summarize"
	// ScopeAdmin allows everything.
	ScopeAdmin Scope = "admin"
)

// ValidScopes returns all valid scope values
func ValidScopes() []Scope {
	return []Scope{ScopeRead, ScopeSummarize, ScopeAdmin}
}

// IsValid checks if a scope is valid
func (s Scope) IsValid() bool {
	switch s {
	case ScopeRead, ScopeSummarize, ScopeAdmin:
		return true
	default:
		return false
	}
}

// Includes reports whether s grants required. admin includes summarize
// includes read.
func (s Scope) Includes(required Scope) bool {
	switch s {
	case ScopeAdmin:
		return true
	case ScopeSummarize:
		return required == ScopeSummarize || required == ScopeRead
	case ScopeRead:
		return required == ScopeRead
	default:
		return false
	}
}

// ParseScopes converts names to scopes, rejecting unknown ones.
func ParseScopes(names []string) ([]Scope, error) {
	scopes := make([]Scope, 0, len(names))
	for _, n := range names {
		s := Scope(n)
		if !s.IsValid() {
			return nil, ErrInvalidScope
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// APIToken is a stored credential for the HTTP API.
type APIToken struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	TokenHash   string     `json:"-" yaml:"-"`
	TokenPrefix string     `json:"tokenPrefix" yaml:"tokenPrefix"`
	Scopes      []Scope    `json:"scopes" yaml:"scopes"`
	RateLimit   *int       `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	CreatedBy   string     `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty" yaml:"lastUsedAt,omitempty"`
	Revoked     bool       `json:"revoked" yaml:"revoked"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty" yaml:"revokedAt,omitempty"`
}

// IsExpired reports whether the token's expiry is before now.
func (k *APIToken) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// HasScope checks if the token has the required scope
func (k *APIToken) HasScope(required Scope) bool {
	for _, s := range k.Scopes {
		if s.Includes(required) {
			return true
		}
	}
	return false
}

// Result is the outcome of an authentication attempt.
type Result struct {
	Authenticated bool    `json:"authenticated"`
	TokenID       string  `json:"tokenId,omitempty"`
	TokenName     string  `json:"tokenName,omitempty"`
	Scopes        []Scope `json:"scopes,omitempty"`
	RateLimited   bool    `json:"rateLimited"`
	RetryAfter    int     `json:"retryAfter,omitempty"`
	ErrorCode     string  `json:"errorCode,omitempty"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
}

// Error codes for authentication failures
const (
	ErrCodeMissingToken      = "missing_token"
	ErrCodeInvalidToken      = "invalid_token"
	ErrCodeExpiredToken      = "expired_token"
	ErrCodeRevokedToken      = "revoked_token"
	ErrCodeInsufficientScope = "insufficient_scope"
	ErrCodeRateLimited       = "rate_limited"
)

// CreateOptions describes a token to mint.
type CreateOptions struct {
	Name      string
	Scopes    []Scope
	RateLimit *int
	TTL       time.Duration
	CreatedBy string
}

// Validate checks if the options are valid
func (o *CreateOptions) Validate() error {
	if o.Name == "" {
		return ErrNameRequired
	}
	if len(o.Scopes) == 0 {
		return ErrScopesRequired
	}
	for _, s := range o.Scopes {
		if !s.IsValid() {
			return ErrInvalidScope
		}
	}
	if o.RateLimit != nil && *o.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}
