package accounts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

//go:embed init.sql
var initQuery string

const (
	recordLoginQuery = `
INSERT INTO wallet_accounts (address, chain, created_at, last_login_at, login_count)
VALUES ($1, $2, $3, $3, 1)
ON CONFLICT (address) DO UPDATE
    SET last_login_at = EXCLUDED.last_login_at,
        login_count   = wallet_accounts.login_count + 1
RETURNING address, chain, created_at, last_login_at, login_count, (xmax = 0) AS inserted`

	getAccountQuery = `
SELECT address, chain, created_at, last_login_at, login_count
FROM wallet_accounts
WHERE address = $1`
)

// PostgresStore persists accounts in Postgres
type PostgresStore struct {
	db *sql.DB
}

var _ ports.AccountStore = (*PostgresStore)(nil)

// NewPostgresStore opens connStr and creates the schema if needed
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, initQuery); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordLogin upserts the account in one statement; the bool result is true
// when the row was inserted rather than updated
func (s *PostgresStore) RecordLogin(ctx context.Context, address, chain string, at time.Time) (core.Account, bool, error) {
	var (
		account  core.Account
		inserted bool
	)
	err := s.db.QueryRowContext(ctx, recordLoginQuery, address, chain, at).Scan(
		&account.Address,
		&account.Chain,
		&account.CreatedAt,
		&account.LastLoginAt,
		&account.LoginCount,
		&inserted,
	)
	if err != nil {
		return core.Account{}, false, fmt.Errorf("failed to record login: %w", err)
	}
	return account, inserted, nil
}

// GetAccount returns the account of address or ErrAccountNotFound
func (s *PostgresStore) GetAccount(ctx context.Context, address string) (core.Account, error) {
	var account core.Account
	err := s.db.QueryRowContext(ctx, getAccountQuery, address).Scan(
		&account.Address,
		&account.Chain,
		&account.CreatedAt,
		&account.LastLoginAt,
		&account.LoginCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
