package core

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidChallenge  = errors.New("invalid challenge")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrUnsupportedChain  = errors.New("unsupported chain")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenInvalidated  = errors.New("token has been invalidated")
	ErrIssuerUnavailable = errors.New("credential issuer unavailable")
	ErrAccountNotFound   = errors.New("account not found")
)
