package verifier

import (
	"fmt"
	"sort"

	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

// Registry resolves the verifier for a chain name
type Registry struct {
	verifiers map[string]ports.Verifier
}

// NewRegistry creates a registry holding the given verifiers
func NewRegistry(verifiers ...ports.Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]ports.Verifier, len(verifiers))}
	for _, v := range verifiers {
		r.verifiers[v.Chain()] = v
	}
	return r
}

// Default returns a registry with every supported chain
func Default() *Registry {
	return NewRegistry(NewSolana(), NewEthereum())
}

// Get returns the verifier for chain; an empty chain means solana
func (r *Registry) Get(chain string) (ports.Verifier, error) {
	chain = core.NormalizeChain(chain)
	v, ok := r.verifiers[chain]
	if !ok {
		return nil, fmt.Errorf("%q: %w", chain, core.ErrUnsupportedChain)
	}
	return v, nil
}

// Chains lists the registered chain names in order
func (r *Registry) Chains() []string {
	chains := make([]string, 0, len(r.verifiers))
	for c := range r.verifiers {
		chains = append(chains, c)
	}
	sort.Strings(chains)
	return chains
}
