package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/solcraft/walletauth/adapters/verifier"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
)

const DefaultChallengeTTL = 5 * time.Minute

const nonceSize = 32

// AuthService handles authentication business logic
type AuthService struct {
	verifiers *verifier.Registry
	issuer    ports.Issuer
	store     ports.Store
	accounts  ports.AccountStore
	eventPub  ports.EventPublisher

	challengeTTL     time.Duration
	domain           string
	requireChallenge bool
	now              func() time.Time
}

// Option configures an AuthService
type Option func(*AuthService)

// WithChallengeTTL sets how long an issued challenge can be redeemed
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *AuthService) { s.challengeTTL = ttl }
}

// WithDomain scopes sign-in messages to a domain
func WithDomain(domain string) Option {
	return func(s *AuthService) { s.domain = domain }
}

// WithRequireChallenge toggles nonce enforcement.
// When disabled, any message signed by the wallet is accepted and can be replayed.
func WithRequireChallenge(require bool) Option {
	return func(s *AuthService) { s.requireChallenge = require }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	verifiers *verifier.Registry,
	issuer ports.Issuer,
	store ports.Store,
	accounts ports.AccountStore,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		verifiers:        verifiers,
		issuer:           issuer,
		store:            store,
		accounts:         accounts,
		eventPub:         eventPub,
		challengeTTL:     DefaultChallengeTTL,
		requireChallenge: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequireChallenge reports whether logins must redeem a server-issued nonce
func (s *AuthService) RequireChallenge() bool {
	return s.requireChallenge
}

// CreateChallenge generates a new sign-in challenge for address and returns
// it together with the message the wallet has to sign
func (s *AuthService) CreateChallenge(ctx context.Context, chain, address string) (core.Challenge, string, error) {
	v, err := s.verifiers.Get(chain)
	if err != nil {
		return core.Challenge{}, "", err
	}
	if !v.ValidAddress(address) {
		return core.Challenge{}, "", core.ErrInvalidAddress
	}

	nonceBytes := make([]byte, nonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return core.Challenge{}, "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Messages carry second precision
	now := s.now().UTC().Truncate(time.Second)
	challenge := core.Challenge{
		ID:        uuid.New().String(),
		Address:   address,
		Chain:     v.Chain(),
		Nonce:     base58.Encode(nonceBytes),
		Domain:    s.domain,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	if err := s.store.SaveChallenge(ctx, challenge, s.challengeTTL); err != nil {
		return core.Challenge{}, "", fmt.Errorf("failed to save challenge: %w", err)
	}
	challengesTotal.WithLabelValues(challenge.Chain).Inc()

	return challenge, core.BuildSignInMessage(challenge), nil
}

// Authenticate verifies a signed sign-in request and mints a credential for the wallet.
// created reports whether this was the first login of the wallet.
func (s *AuthService) Authenticate(ctx context.Context, req core.SignedAuthRequest) (cred core.IssuedCredential, account core.Account, created bool, err error) {
	defer func() { loginsTotal.WithLabelValues(outcome(err)).Inc() }()

	if req.PublicKey == "" || req.Message == "" || req.Signature == "" {
		return cred, account, false, core.ErrInvalidRequest
	}

	v, err := s.verifiers.Get(req.Chain)
	if err != nil {
		return cred, account, false, err
	}

	if !v.Verify(req.PublicKey, req.Message, req.Signature) {
		return cred, account, false, core.ErrInvalidSignature
	}

	if s.requireChallenge {
		if err := s.redeemChallenge(ctx, v.Chain(), req); err != nil {
			return cred, account, false, err
		}
	}

	cred, err = s.issue(ctx, req.PublicKey, v.Chain())
	if err != nil {
		return core.IssuedCredential{}, account, false, err
	}

	account, created, err = s.accounts.RecordLogin(ctx, req.PublicKey, v.Chain(), cred.IssuedAt)
	if err != nil {
		log.Warn().Err(err).Str("address", req.PublicKey).Msg("failed to record login")
		account = core.Account{Address: req.PublicKey, Chain: v.Chain()}
		created = false
	}

	if err := s.eventPub.PublishLogin(ctx, req.PublicKey, cred.ID); err != nil {
		log.Warn().Err(err).Str("address", req.PublicKey).Msg("failed to publish login event")
	}

	return cred, account, created, nil
}

func (s *AuthService) issue(ctx context.Context, subject, chain string) (core.IssuedCredential, error) {
	cred, err := s.issuer.Issue(ctx, subject, chain)
	if err != nil {
		if !errors.Is(err, core.ErrIssuerUnavailable) {
			err = fmt.Errorf("%v: %w", err, core.ErrIssuerUnavailable)
		}
		return core.IssuedCredential{}, err
	}
	return cred, nil
}

// redeemChallenge consumes the nonce embedded in the signed message. The
// message must be exactly the one rendered for the stored challenge.
func (s *AuthService) redeemChallenge(ctx context.Context, chain string, req core.SignedAuthRequest) error {
	msg, err := core.ParseSignInMessage(req.Message)
	if err != nil {
		return err
	}
	if msg.Address != req.PublicKey {
		return fmt.Errorf("message address mismatch: %w", core.ErrInvalidChallenge)
	}

	challenge, err := s.store.ConsumeChallenge(ctx, msg.Nonce)
	if err != nil {
		return err
	}

	if challenge.Address != req.PublicKey || challenge.Chain != chain || challenge.Domain != s.domain {
		return fmt.Errorf("challenge issued for another wallet: %w", core.ErrInvalidChallenge)
	}
	if core.BuildSignInMessage(challenge) != req.Message {
		return fmt.Errorf("message does not match challenge: %w", core.ErrInvalidChallenge)
	}
	if s.now().After(challenge.ExpiresAt) {
		return core.ErrChallengeExpired
	}

	return nil
}

// ValidateCredential parses a bearer credential and checks it was not revoked
func (s *AuthService) ValidateCredential(ctx context.Context, token string) (core.Session, error) {
	parser, ok := s.issuer.(ports.CredentialParser)
	if !ok {
		return core.Session{}, fmt.Errorf("issuer cannot parse credentials: %w", core.ErrInvalidToken)
	}

	session, err := parser.Parse(token)
	if err != nil {
		return core.Session{}, err
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.ID)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return core.Session{}, core.ErrTokenInvalidated
	}

	return session, nil
}

// Refresh exchanges a valid credential for a new one bound to the same wallet.
// The presented credential is revoked before the new one is minted.
func (s *AuthService) Refresh(ctx context.Context, token string) (core.IssuedCredential, error) {
	session, err := s.ValidateCredential(ctx, token)
	if err != nil {
		return core.IssuedCredential{}, err
	}

	if err := s.revoke(ctx, session); err != nil {
		return core.IssuedCredential{}, err
	}

	cred, err := s.issue(ctx, session.Subject, session.Chain)
	if err != nil {
		return core.IssuedCredential{}, err
	}

	if err := s.eventPub.PublishLogin(ctx, session.Subject, cred.ID); err != nil {
		log.Warn().Err(err).Str("address", session.Subject).Msg("failed to publish login event")
	}

	return cred, nil
}

// Logout revokes a credential for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.ValidateCredential(ctx, token)
	if err != nil {
		return err
	}

	if err := s.revoke(ctx, session); err != nil {
		return err
	}

	if err := s.eventPub.PublishLogout(ctx, session.Subject, session.ID); err != nil {
		log.Warn().Err(err).Str("address", session.Subject).Msg("failed to publish logout event")
	}

	return nil
}

// revoke blocks the credential's jti until the credential would expire anyway
func (s *AuthService) revoke(ctx context.Context, session core.Session) error {
	remaining := session.ExpiresAt.Sub(s.now())
	if remaining < time.Second {
		remaining = time.Second
	}

	if err := s.store.InvalidateToken(ctx, session.ID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// Account returns the account record of a wallet
func (s *AuthService) Account(ctx context.Context, address string) (core.Account, error) {
	return s.accounts.GetAccount(ctx, address)
}

// VerificationKey returns the public key credentials are signed with, if the issuer exposes one
func (s *AuthService) VerificationKey() (ed25519.PublicKey, bool) {
	parser, ok := s.issuer.(ports.CredentialParser)
	if !ok {
		return nil, false
	}
	return parser.PublicKey(), true
}

// Chains lists the chains wallets can sign in with
func (s *AuthService) Chains() []string {
	return s.verifiers.Chains()
}
