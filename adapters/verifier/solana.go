package verifier

import (
	"crypto/ed25519"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

// Solana verifies detached Ed25519 signatures produced by Solana wallets.
// Keys and signatures are base58 encoded.
type Solana struct{}

// NewSolana creates a new Solana verifier
func NewSolana() ports.Verifier {
	return Solana{}
}

// Chain returns the chain name handled by this verifier
func (Solana) Chain() string {
	return core.ChainSolana
}

// ValidAddress reports whether address is a base58 encoded Ed25519 point
func (Solana) ValidAddress(address string) bool {
	_, ok := decodeSolanaKey(address)
	return ok
}

// Verify checks signature over message for publicKey. It never panics and
// returns false for anything that does not decode.
func (Solana) Verify(publicKey, message, signature string) bool {
	key, ok := decodeSolanaKey(publicKey)
	if !ok {
		return false
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(key, []byte(message), sig)
}

func decodeSolanaKey(s string) (ed25519.PublicKey, bool) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, false
	}
	// Program derived addresses are 32 bytes too but lie off the curve
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return nil, false
	}
	return ed25519.PublicKey(raw), true
}
