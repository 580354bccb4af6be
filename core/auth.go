package core

import "time"

const (
	ChainSolana   = "solana"
	ChainEthereum = "ethereum"
)

// SignedAuthRequest is a single login attempt presented by a wallet holder
type SignedAuthRequest struct {
	Chain     string // Wallet chain, defaults to solana
	PublicKey string // Wallet address (base58 for solana, 0x hex for ethereum)
	Message   string // UTF-8 message that was signed
	Signature string // Encoded signature over Message
}

// IssuedCredential is a bearer credential bound to a verified wallet address
type IssuedCredential struct {
	Token     string    // Opaque signed bearer string
	Subject   string    // Wallet address the token was minted for
	ID        string    // Token identifier (jti), empty for issuers that do not expose one
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being accepted
}

// Challenge is a server-issued, single-use nonce bound to a wallet address
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Wallet address the challenge was issued for
	Chain     string    // Wallet chain
	Nonce     string    // Random nonce embedded in the sign-in message
	Domain    string    // Domain the sign-in message is scoped to
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Session is the view of a credential after it has been parsed back
type Session struct {
	ID        string
	Subject   string
	Chain     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Account is the profile record kept for every wallet that signed in
type Account struct {
	Address     string
	Chain       string
	CreatedAt   time.Time
	LastLoginAt time.Time
	LoginCount  int64
}

// NormalizeChain maps an empty chain name to the default chain
func NormalizeChain(chain string) string {
	if chain == "" {
		return ChainSolana
	}
	return chain
}
