package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

const defaultPrefix = "walletauth:"

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.Store = (*RedisStore)(nil)

type challengeRecord struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Nonce     string    `json:"nonce"`
	Domain    string    `json:"domain,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
}

func (s *RedisStore) challengeKey(nonce string) string {
	return s.prefix + "challenge:" + nonce
}

func (s *RedisStore) invalidatedKey(tokenID string) string {
	return s.prefix + "invalidated:" + tokenID
}

// SaveChallenge stores the challenge with an expiration so Redis drops stale nonces
func (s *RedisStore) SaveChallenge(ctx context.Context, challenge core.Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(challengeRecord(challenge))
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	// NX keeps a nonce collision from overwriting a live challenge
	ok, err := s.client.SetNX(ctx, s.challengeKey(challenge.Nonce), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to save challenge: nonce already in use")
	}

	return nil
}

// ConsumeChallenge reads and deletes the challenge in a single GETDEL
func (s *RedisStore) ConsumeChallenge(ctx context.Context, nonce string) (core.Challenge, error) {
	payload, err := s.client.GetDel(ctx, s.challengeKey(nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Challenge{}, core.ErrInvalidChallenge
	}
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	if time.Now().After(record.ExpiresAt) {
		return core.Challenge{}, core.ErrChallengeExpired
	}

	return core.Challenge(record), nil
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	// Set key with expiration
	if err := s.client.Set(ctx, s.invalidatedKey(tokenID), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.invalidatedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}
