package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/service"
)

const (
	msgInvalidRequest   = "Invalid request"
	msgSignatureFailed  = "Signature verification failed"
	msgServerError      = "Server error"
	msgUnauthorized     = "Invalid token"
	msgTokenExpired     = "Token expired"
	msgTooManyRequests  = "Too many requests"
	msgKeyNotAvailable  = "Verification key not available"
	verificationKeyAlgo = "EdDSA"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Challenge issues a sign-in message with a fresh nonce
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
		Chain     string `json:"chain"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	challenge, message, err := h.authService.CreateChallenge(c.Request.Context(), req.Chain, req.PublicKey)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) || errors.Is(err, core.ErrUnsupportedChain) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
			return
		}
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("failed to create challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"nonce":     challenge.Nonce,
		"chain":     challenge.Chain,
		"expiresAt": challenge.ExpiresAt.Format(time.RFC3339),
	})
}

// Wallet verifies a signed sign-in message and returns a credential for the wallet
func (h *AuthHandlers) Wallet(c *gin.Context) {
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Chain     string `json:"chain"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	cred, _, created, err := h.authService.Authenticate(c.Request.Context(), core.SignedAuthRequest{
		Chain:     req.Chain,
		PublicKey: req.PublicKey,
		Message:   req.Message,
		Signature: req.Signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, core.ErrUnsupportedChain):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		case errors.Is(err, core.ErrInvalidSignature),
			errors.Is(err, core.ErrInvalidChallenge),
			errors.Is(err, core.ErrChallengeExpired):
			// Every verification failure looks the same to the caller
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgSignatureFailed})
		default:
			log.Error().Err(err).
				Str("request_id", requestID(c)).
				Str("address", req.PublicKey).
				Msg("failed to issue credential")
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		}
		return
	}

	log.Info().Str("address", cred.Subject).Bool("new_account", created).Msg("wallet signed in")

	resp := gin.H{
		"token":      cred.Token,
		"newAccount": created,
	}
	if !cred.ExpiresAt.IsZero() {
		resp["expiresAt"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// LegacyWalletAuth sends callers of the old unverified route to the verified one
func (h *AuthHandlers) LegacyWalletAuth(c *gin.Context) {
	c.Redirect(http.StatusPermanentRedirect, "/api/auth/wallet")
}

// Me returns the account of the authenticated wallet
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}

	account, err := h.authService.Account(c.Request.Context(), session.Subject)
	if err != nil {
		if !errors.Is(err, core.ErrAccountNotFound) {
			log.Error().Err(err).Str("address", session.Subject).Msg("failed to load account")
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": session.Subject, "chain": session.Chain})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     account.Address,
		"chain":       account.Chain,
		"createdAt":   account.CreatedAt.UTC().Format(time.RFC3339),
		"lastLoginAt": account.LastLoginAt.UTC().Format(time.RFC3339),
		"loginCount":  account.LoginCount,
	})
}

// Refresh trades the bearer credential for a new one and revokes the old one
func (h *AuthHandlers) Refresh(c *gin.Context) {
	cred, err := h.authService.Refresh(c.Request.Context(), c.GetString(ctxKeyToken))
	if err != nil {
		if isCredentialError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
			return
		}
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("failed to refresh credential")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}

	resp := gin.H{"token": cred.Token}
	if !cred.ExpiresAt.IsZero() {
		resp["expiresAt"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the bearer credential
func (h *AuthHandlers) Logout(c *gin.Context) {
	token := c.GetString(ctxKeyToken)

	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		if isCredentialError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
			return
		}
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("failed to logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// VerificationKey publishes the key relying parties verify credentials with
func (h *AuthHandlers) VerificationKey(c *gin.Context) {
	key, ok := h.authService.VerificationKey()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgKeyNotAvailable})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"algorithm": verificationKeyAlgo,
		"publicKey": base64.StdEncoding.EncodeToString(key),
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": h.authService.Chains(),
	})
}

func isCredentialError(err error) bool {
	return errors.Is(err, core.ErrInvalidToken) ||
		errors.Is(err, core.ErrTokenExpired) ||
		errors.Is(err, core.ErrTokenInvalidated)
}
