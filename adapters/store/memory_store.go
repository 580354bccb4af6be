package store

import (
	"context"
	"sync"
	"time"

	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

type storedChallenge struct {
	challenge core.Challenge
	expiry    time.Time
}

// MemoryStore is an in-memory implementation of the Store interface.
// Expired entries are dropped lazily and by Run.
type MemoryStore struct {
	challenges        map[string]storedChallenge
	invalidatedTokens map[string]time.Time
	mu                sync.Mutex
	now               func() time.Time
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges:        make(map[string]storedChallenge),
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

// SaveChallenge stores a challenge under its nonce
func (s *MemoryStore) SaveChallenge(ctx context.Context, challenge core.Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Nonce] = storedChallenge{
		challenge: challenge,
		expiry:    s.now().Add(ttl),
	}
	return nil
}

// ConsumeChallenge removes and returns the challenge stored under nonce
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, nonce string) (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.challenges[nonce]
	if !exists {
		return core.Challenge{}, core.ErrInvalidChallenge
	}
	delete(s.challenges, nonce)

	if s.now().After(stored.expiry) {
		return core.Challenge{}, core.ErrChallengeExpired
	}

	return stored.challenge, nil
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := s.now().Add(expiry)
	// Never shorten an existing invalidation
	if stored, exists := s.invalidatedTokens[tokenID]; exists && stored.After(expiryTime) {
		return nil
	}
	s.invalidatedTokens[tokenID] = expiryTime

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if s.now().After(expiryTime) {
		return false, nil
	}

	return true, nil
}

// Sweep drops every expired challenge and invalidation record
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for nonce, stored := range s.challenges {
		if now.After(stored.expiry) {
			delete(s.challenges, nonce)
			removed++
		}
	}
	for id, expiry := range s.invalidatedTokens {
		if now.After(expiry) {
			delete(s.invalidatedTokens, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
