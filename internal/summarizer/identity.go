package summarizer

import (
	"context"
	"sync"

	"aisum/internal/issues"
)

// Identity resolves the account the tracker client is authenticated as. The
// first successful lookup is kept for the life of the process.
type Identity struct {
	source issues.Source

	mu   sync.Mutex
	self *issues.User
}

// NewIdentity creates an identity provider over src.
func NewIdentity(src issues.Source) *Identity {
	return &Identity{source: src}
}

// Self returns the authenticated user. Failures are not cached.
func (id *Identity) Self(ctx context.Context) (*issues.User, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.self != nil {
		return id.self, nil
	}
	me, err := id.source.Myself(ctx)
	if err != nil {
		return nil, err
	}
	id.self = me
	return me, nil
}
