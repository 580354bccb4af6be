package ports

import (
	"context"
	"time"

	"github.com/solcraft/walletauth/core"
)

// Store keeps sign-in challenges and token invalidations
type Store interface {
	// SaveChallenge stores a challenge under its nonce for ttl
	SaveChallenge(ctx context.Context, challenge core.Challenge, ttl time.Duration) error
	// ConsumeChallenge atomically fetches and removes the challenge for nonce.
	// Unknown or already consumed nonces yield core.ErrInvalidChallenge.
	ConsumeChallenge(ctx context.Context, nonce string) (core.Challenge, error)

	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
