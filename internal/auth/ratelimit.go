package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	Enabled         bool
	DefaultLimit    int // requests per minute
	BurstSize       int
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig is disabled, 60 requests a minute, bursts of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         false,
		DefaultLimit:    60,
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter is a per-token token bucket.
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	perMinute  int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 60
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow consumes one request for id. When refused it reports how many
// seconds until the next request would be allowed.
func (r *RateLimiter) Allow(id string, customLimit *int) (bool, int) {
	if !r.config.Enabled {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[id]
	if !ok {
		limit := r.config.DefaultLimit
		if customLimit != nil && *customLimit > 0 {
			limit = *customLimit
		}
		b = &bucket{tokens: float64(r.config.BurstSize), lastRefill: now, perMinute: limit}
		r.buckets[id] = b
	}

	rate := float64(b.perMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	b.lastRefill = now
	if b.tokens > float64(r.config.BurstSize) {
		b.tokens = float64(r.config.BurstSize)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	return false, int((1-b.tokens)/rate) + 1
}

// Reset forgets the bucket for id.
func (r *RateLimiter) Reset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, id)
}

// StartCleanup drops idle buckets periodically until ctx is done.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.config.Enabled {
		return
	}
	go func() {
		ticker := time.NewTicker(r.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-10 * time.Minute)
	removed := 0
	for id, b := range r.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(r.buckets, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("Rate limit cleanup", "removed", removed, "remaining", len(r.buckets))
	}
}

// Stats returns rate limiter statistics
func (r *RateLimiter) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"enabled":      r.config.Enabled,
		"defaultLimit": r.config.DefaultLimit,
		"burstSize":    r.config.BurstSize,
		"activeTokens": len(r.buckets),
	}
}
