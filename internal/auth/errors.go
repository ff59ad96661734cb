package auth

import "aisum/internal/errors"

var (
	ErrNameRequired     = errors.Newf(errors.InvalidInput, "name is required")
	ErrScopesRequired   = errors.Newf(errors.InvalidInput, "at least one scope is required")
	ErrInvalidScope     = errors.Newf(errors.InvalidInput, "invalid scope")
	ErrInvalidRateLimit = errors.Newf(errors.InvalidInput, "rate limit must be positive")

	ErrTokenNotFound       = errors.Newf(errors.NotFound, "API token not found")
	ErrStoreNotInitialized = errors.Newf(errors.InternalError, "token store not initialized")
)
