package ports

// Verifier checks wallet signatures for one chain.
// Verify must be a pure function that returns false on any decoding failure.
type Verifier interface {
	Chain() string
	ValidAddress(address string) bool
	Verify(publicKey, message, signature string) bool
}
