package repositories

import (
	"context"
	"time"
)

// TokenBlacklist records revoked token IDs until the tokens would have
// expired anyway. Validation consults it so that revoking a session
// takes effect immediately instead of at natural token expiry.
type TokenBlacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
