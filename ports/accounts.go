package ports

import (
	"context"
	"time"

	"github.com/solcraft/walletauth/core"
)

// AccountStore keeps one profile record per wallet address
type AccountStore interface {
	// RecordLogin creates the account on first login and bumps the login counters.
	// created reports whether the account did not exist before.
	RecordLogin(ctx context.Context, address, chain string, at time.Time) (account core.Account, created bool, err error)
	GetAccount(ctx context.Context, address string) (core.Account, error)
}
