package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

// MemoryStore keeps accounts in a map, for development and tests
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
}

var _ ports.AccountStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]core.Account)}
}

// RecordLogin creates the account on first login and bumps its counters afterwards.
// The bool result is true when the account was created.
func (s *MemoryStore) RecordLogin(ctx context.Context, address, chain string, at time.Time) (core.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[address]
	if !exists {
		account = core.Account{
			Address:   address,
			Chain:     chain,
			CreatedAt: at,
		}
	}
	account.LastLoginAt = at
	account.LoginCount++
	s.accounts[address] = account

	return account, !exists, nil
}

// GetAccount returns the account of address or ErrAccountNotFound
func (s *MemoryStore) GetAccount(ctx context.Context, address string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[address]
	if !ok {
		return core.Account{}, core.ErrAccountNotFound
	}
	return account, nil
}
