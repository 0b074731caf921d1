package repositories

import (
	"context"
	"sync"
	"time"
)

// MockTokenBlacklist is an in-memory implementation of TokenBlacklist.
type MockTokenBlacklist struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

// NewMockTokenBlacklist creates a new instance of MockTokenBlacklist.
func NewMockTokenBlacklist() *MockTokenBlacklist {
	return &MockTokenBlacklist{
		revoked: make(map[string]time.Time),
	}
}

// Revoke marks a token ID as revoked until the given TTL elapses.
func (b *MockTokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

// IsRevoked reports whether a token ID has been revoked and not yet expired.
func (b *MockTokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	expiry, ok := b.revoked[tokenID]
	return ok && time.Now().Before(expiry), nil
}
