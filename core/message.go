package core

import (
	"fmt"
	"strings"
	"time"
)

// SignInPrefix is the first line every SolCraft wallet prompt starts with
const SignInPrefix = "Sign in to SolCraft Poker with address "

const (
	fieldDomain     = "Domain"
	fieldNonce      = "Nonce"
	fieldIssuedAt   = "Issued At"
	fieldExpiration = "Expiration Time"
)

// SignInMessage is the parsed form of a challenge sign-in message
type SignInMessage struct {
	Address   string
	Domain    string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LegacySignInMessage returns the bare prompt used by clients that predate challenges
func LegacySignInMessage(address string) string {
	return SignInPrefix + address
}

// BuildSignInMessage renders the text a wallet is asked to sign for a challenge
func BuildSignInMessage(c Challenge) string {
	var b strings.Builder
	b.WriteString(SignInPrefix)
	b.WriteString(c.Address)
	b.WriteString("\n\n")
	if c.Domain != "" {
		fmt.Fprintf(&b, "%s: %s\n", fieldDomain, c.Domain)
	}
	fmt.Fprintf(&b, "%s: %s\n", fieldNonce, c.Nonce)
	fmt.Fprintf(&b, "%s: %s\n", fieldIssuedAt, c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s: %s", fieldExpiration, c.ExpiresAt.UTC().Format(time.RFC3339))
	return b.String()
}

// ParseSignInMessage extracts the challenge fields from a signed message.
// A message without an address line or a nonce is rejected with ErrInvalidChallenge.
func ParseSignInMessage(msg string) (SignInMessage, error) {
	lines := strings.Split(strings.ReplaceAll(msg, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], SignInPrefix) {
		return SignInMessage{}, ErrInvalidChallenge
	}

	out := SignInMessage{Address: strings.TrimSpace(strings.TrimPrefix(lines[0], SignInPrefix))}
	if out.Address == "" {
		return SignInMessage{}, ErrInvalidChallenge
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case fieldDomain:
			out.Domain = value
		case fieldNonce:
			out.Nonce = value
		case fieldIssuedAt:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return SignInMessage{}, fmt.Errorf("issued at: %w", ErrInvalidChallenge)
			}
			out.IssuedAt = t
		case fieldExpiration:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return SignInMessage{}, fmt.Errorf("expiration time: %w", ErrInvalidChallenge)
			}
			out.ExpiresAt = t
		}
	}

	if out.Nonce == "" {
		return SignInMessage{}, ErrInvalidChallenge
	}

	return out, nil
}
