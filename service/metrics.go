package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/solcraft/walletauth/core"
)

const (
	OutcomeSuccess      = "success"
	OutcomeBadRequest   = "bad_request"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

var (
	challengesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletauth",
		Name:      "challenges_total",
		Help:      "Sign-in challenges issued.",
	}, []string{"chain"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletauth",
		Name:      "logins_total",
		Help:      "Wallet login attempts by outcome.",
	}, []string{"outcome"})
)

// outcome classifies an Authenticate error for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, core.ErrUnsupportedChain):
		return OutcomeBadRequest
	case errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrInvalidChallenge),
		errors.Is(err, core.ErrChallengeExpired):
		return OutcomeUnauthorized
	default:
		return OutcomeError
	}
}
