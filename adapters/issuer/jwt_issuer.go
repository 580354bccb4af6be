package issuer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

const (
	DefaultIssuerName = "solcraft-walletauth"
	DefaultTokenTTL   = time.Hour
)

// JWTIssuer mints EdDSA signed JWT credentials
type JWTIssuer struct {
	signKey   *memguard.LockedBuffer
	publicKey ed25519.PublicKey
	name      string
	ttl       time.Duration
	now       func() time.Time
}

var (
	_ ports.Issuer           = (*JWTIssuer)(nil)
	_ ports.CredentialParser = (*JWTIssuer)(nil)
)

// JWTOption configures a JWTIssuer
type JWTOption func(*JWTIssuer)

// WithIssuerName sets the iss claim
func WithIssuerName(name string) JWTOption {
	return func(j *JWTIssuer) { j.name = name }
}

// WithTokenTTL sets how long minted credentials stay valid
func WithTokenTTL(ttl time.Duration) JWTOption {
	return func(j *JWTIssuer) { j.ttl = ttl }
}

// WithClock replaces the time source, used by tests
func WithClock(now func() time.Time) JWTOption {
	return func(j *JWTIssuer) { j.now = now }
}

// NewJWTIssuer creates a new JWT issuer.
// The private key is moved into guarded memory and signKey is wiped.
func NewJWTIssuer(signKey ed25519.PrivateKey, opts ...JWTOption) (*JWTIssuer, error) {
	if len(signKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(signKey))
	}

	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, signKey.Public().(ed25519.PublicKey))

	j := &JWTIssuer{
		signKey:   memguard.NewBufferFromBytes(signKey),
		publicKey: pub,
		name:      DefaultIssuerName,
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

// Issue mints a credential whose subject is the wallet address
func (j *JWTIssuer) Issue(ctx context.Context, subject string, chain string) (core.IssuedCredential, error) {
	if !j.signKey.IsAlive() {
		return core.IssuedCredential{}, fmt.Errorf("signing key destroyed: %w", core.ErrIssuerUnavailable)
	}

	now := j.now()
	claims := CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.name,
			Subject:   subject,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Chain: chain,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)

	signedToken, err := token.SignedString(ed25519.PrivateKey(j.signKey.Bytes()))
	if err != nil {
		return core.IssuedCredential{}, fmt.Errorf("failed to sign token: %v: %w", err, core.ErrIssuerUnavailable)
	}

	return core.IssuedCredential{
		Token:     signedToken,
		Subject:   subject,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse validates a credential and returns the session it describes
func (j *JWTIssuer) Parse(tokenStr string) (core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CredentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(AudienceSession),
		jwt.WithIssuer(j.name),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.Session{}, core.ErrTokenExpired
		}
		return core.Session{}, fmt.Errorf("failed to parse token: %v: %w", err, core.ErrInvalidToken)
	}

	claims, ok := token.Claims.(*CredentialClaims)
	if !ok || !token.Valid {
		return core.Session{}, core.ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return core.Session{}, fmt.Errorf("missing claims: %w", core.ErrInvalidToken)
	}

	return core.Session{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Chain:     claims.Chain,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// PublicKey returns the key relying parties use to verify credentials
func (j *JWTIssuer) PublicKey() ed25519.PublicKey {
	return j.publicKey
}

// Destroy wipes the signing key; Issue fails afterwards
func (j *JWTIssuer) Destroy() {
	j.signKey.Destroy()
}
