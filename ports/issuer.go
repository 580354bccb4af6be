package ports

import (
	"context"
	"crypto/ed25519"

	"github.com/solcraft/walletauth/core"
)

// Issuer mints bearer credentials for verified wallet addresses
type Issuer interface {
	Issue(ctx context.Context, subject string, chain string) (core.IssuedCredential, error)
}

// CredentialParser is implemented by issuers that can read back their own credentials
type CredentialParser interface {
	Parse(token string) (core.Session, error)
	PublicKey() ed25519.PublicKey
}
