package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geniechat/genie/internal/model"
)

const (
	// sessionCachePrefix is the Redis key prefix for session context cache.
	sessionCachePrefix = "session:ctx:"
	// sessionCacheTTL is the time-to-live for cached session contexts.
	// Kept short so revoked or deleted users fall out quickly.
	sessionCacheTTL = 5 * time.Minute
)

// cachedSession represents a session context stored in Redis.
// ExpiresAt carries the token's own expiry so a hit can never outlive it.
type cachedSession struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"exp"`
}

// expired reports whether the underlying token has expired.
func (s cachedSession) expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// sessionTTL returns the cache TTL for an entry, capped at the token's
// remaining lifetime. A non-positive result means do not cache.
func sessionTTL(expiresAt, now time.Time) time.Duration {
	ttl := sessionCacheTTL
	if !expiresAt.IsZero() {
		if remaining := expiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// GetSession retrieves a cached session context by token digest.
// Returns nil if not found (cache miss) or if the token has expired.
func (c *Cache) GetSession(ctx context.Context, digest string) (*model.AuthContext, error) {
	key := sessionCachePrefix + digest

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	if cached.expired(time.Now()) {
		return nil, nil
	}

	return &model.AuthContext{
		UserID: cached.UserID,
		Email:  cached.Email,
	}, nil
}

// SetSession caches a session context keyed by token digest.
// Entries for already expired tokens are not written.
func (c *Cache) SetSession(ctx context.Context, digest string, auth *model.AuthContext, expiresAt time.Time) error {
	key := sessionCachePrefix + digest

	ttl := sessionTTL(expiresAt, time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedSession{
		UserID:    auth.UserID,
		Email:     auth.Email,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// DeleteSession removes a cached session context.
func (c *Cache) DeleteSession(ctx context.Context, digest string) error {
	key := sessionCachePrefix + digest
	return c.client.Del(ctx, key).Err()
}
