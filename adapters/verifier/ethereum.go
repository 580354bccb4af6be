package verifier

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

// Ethereum verifies EIP-191 personal_sign signatures
type Ethereum struct{}

// NewEthereum creates a new Ethereum verifier
func NewEthereum() ports.Verifier {
	return Ethereum{}
}

func (Ethereum) Chain() string {
	return core.ChainEthereum
}

func (Ethereum) ValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// Verify recovers the signer of message and compares it with publicKey
func (e Ethereum) Verify(publicKey, message, signature string) bool {
	if !e.ValidAddress(publicKey) {
		return false
	}

	decodedSig, err := hexutil.Decode(signature)
	if err != nil || len(decodedSig) != crypto.SignatureLength {
		return false
	}

	// Wallets return V as 27/28, crypto expects 0/1
	sig := make([]byte, len(decodedSig))
	copy(sig, decodedSig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}

	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(publicKey)
}
