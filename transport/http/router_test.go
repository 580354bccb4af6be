package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/solcraft/walletauth/adapters/accounts"
	"github.com/solcraft/walletauth/adapters/events"
	"github.com/solcraft/walletauth/adapters/issuer"
	"github.com/solcraft/walletauth/adapters/store"
	"github.com/solcraft/walletauth/adapters/verifier"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
	"github.com/solcraft/walletauth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Deterministic wallet used across the HTTP tests
var testWallet = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x2a}, ed25519.SeedSize))

func testAddress() string {
	return base58.Encode(testWallet.Public().(ed25519.PublicKey))
}

func signWith(key ed25519.PrivateKey, msg string) string {
	return base58.Encode(ed25519.Sign(key, []byte(msg)))
}

type stubIssuer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (i *stubIssuer) Issue(ctx context.Context, subject, chain string) (core.IssuedCredential, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	if i.err != nil {
		return core.IssuedCredential{}, i.err
	}
	return core.IssuedCredential{Token: "stub." + subject, Subject: subject}, nil
}

func newJWTIssuer(t *testing.T) *issuer.JWTIssuer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	iss, err := issuer.NewJWTIssuer(priv)
	require.NoError(t, err)
	t.Cleanup(iss.Destroy)
	return iss
}

func newHandler(iss ports.Issuer, routerOpts Options, opts ...service.Option) http.Handler {
	s := service.NewAuthService(
		verifier.Default(),
		iss,
		store.NewMemoryStore(),
		accounts.NewMemoryStore(),
		events.NopPublisher{},
		opts...,
	)
	h, err := SetupRouter(s, routerOpts)
	if err != nil {
		panic(err)
	}
	return h
}

func performRequest(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return performRequest(h, http.MethodPost, path, string(raw), headers)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWalletLegacyMessage(t *testing.T) {
	iss := newJWTIssuer(t)
	h := newHandler(iss, Options{}, service.WithRequireChallenge(false))

	msg := "Sign in to SolCraft Poker with address " + testAddress()
	sig := signWith(testWallet, msg)

	w := postJSON(t, h, "/api/auth/wallet", map[string]string{
		"publicKey": testAddress(), "message": msg, "signature": sig,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, true, body["newAccount"])

	session, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, testAddress(), session.Subject)

	raw, err := base58.Decode(sig)
	require.NoError(t, err)
	raw[0] ^= 0xff

	w = postJSON(t, h, "/api/auth/wallet", map[string]string{
		"publicKey": testAddress(), "message": msg, "signature": base58.Encode(raw),
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Signature verification failed", decode(t, w)["error"])
}

func TestWalletBadRequests(t *testing.T) {
	msg := "Sign in to SolCraft Poker with address " + testAddress()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed json", `{"publicKey":`},
		{"missing signature", `{"publicKey":"` + testAddress() + `","message":"` + msg + `"}`},
		{"missing message", `{"publicKey":"` + testAddress() + `","signature":"abc"}`},
		{"missing public key", `{"message":"` + msg + `","signature":"abc"}`},
		{"unsupported chain", `{"chain":"dogecoin","publicKey":"` + testAddress() + `","message":"m","signature":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss := &stubIssuer{}
			h := newHandler(iss, Options{}, service.WithRequireChallenge(false))

			w := performRequest(h, http.MethodPost, "/api/auth/wallet", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Invalid request", decode(t, w)["error"])
			assert.Zero(t, iss.calls)
		})
	}
}

func TestWalletMalformedBase58(t *testing.T) {
	msg := "Sign in to SolCraft Poker with address " + testAddress()

	for _, body := range []map[string]string{
		{"publicKey": "0OIl", "message": msg, "signature": signWith(testWallet, msg)},
		{"publicKey": testAddress(), "message": msg, "signature": "not*base58"},
		{"publicKey": testAddress(), "message": msg, "signature": base58.Encode([]byte("short"))},
	} {
		iss := &stubIssuer{}
		h := newHandler(iss, Options{}, service.WithRequireChallenge(false))

		w := postJSON(t, h, "/api/auth/wallet", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Signature verification failed", decode(t, w)["error"])
		assert.Zero(t, iss.calls)
	}
}

func TestWalletIssuerFailure(t *testing.T) {
	iss := &stubIssuer{err: errors.New("credentials file missing")}
	h := newHandler(iss, Options{}, service.WithRequireChallenge(false))

	msg := "Sign in to SolCraft Poker with address " + testAddress()
	w := postJSON(t, h, "/api/auth/wallet", map[string]string{
		"publicKey": testAddress(), "message": msg, "signature": signWith(testWallet, msg),
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Server error", body["error"])
	assert.NotContains(t, body, "token")
	assert.Equal(t, 1, iss.calls)
}

func TestChallengeFlow(t *testing.T) {
	h := newHandler(newJWTIssuer(t), Options{})

	w := postJSON(t, h, "/api/auth/challenge", map[string]string{"publicKey": testAddress()}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	challenge := decode(t, w)
	msg, _ := challenge["message"].(string)
	require.NotEmpty(t, msg)
	assert.Contains(t, msg, challenge["nonce"])
	assert.Equal(t, core.ChainSolana, challenge["chain"])
	assert.NotEmpty(t, challenge["expiresAt"])

	req := map[string]string{"publicKey": testAddress(), "message": msg, "signature": signWith(testWallet, msg)}

	w = postJSON(t, h, "/api/auth/wallet", req, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["token"])

	// Replay of a consumed nonce
	w = postJSON(t, h, "/api/auth/wallet", req, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Signature verification failed", decode(t, w)["error"])
}

func TestChallengeBadRequests(t *testing.T) {
	h := newHandler(newJWTIssuer(t), Options{})

	for _, body := range []string{
		``,
		`{}`,
		`{"publicKey":"0OIl"}`,
		`{"publicKey":"8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh"}`, // 32 bytes, not a curve point
		`{"publicKey":"` + testAddress() + `","chain":"dogecoin"}`,
	} {
		w := performRequest(h, http.MethodPost, "/api/auth/challenge", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestLegacyRouteRedirects(t *testing.T) {
	iss := &stubIssuer{}
	h := newHandler(iss, Options{}, service.WithRequireChallenge(false))

	w := performRequest(h, http.MethodPost, "/api/wallet-auth", `{"walletAddress":"`+testAddress()+`"}`, nil)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/api/auth/wallet", w.Header().Get("Location"))
	assert.Zero(t, iss.calls)
}

func TestMeAndLogout(t *testing.T) {
	h := newHandler(newJWTIssuer(t), Options{}, service.WithRequireChallenge(false))

	msg := "Sign in to SolCraft Poker with address " + testAddress()
	w := postJSON(t, h, "/api/auth/wallet", map[string]string{
		"publicKey": testAddress(), "message": msg, "signature": signWith(testWallet, msg),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)
	auth := map[string]string{"Authorization": "Bearer " + token}

	w = performRequest(h, http.MethodGet, "/api/auth/me", "", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode(t, w)
	assert.Equal(t, testAddress(), me["address"])
	assert.Equal(t, core.ChainSolana, me["chain"])
	assert.EqualValues(t, 1, me["loginCount"])

	w = performRequest(h, http.MethodPost, "/api/auth/logout", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logged out", decode(t, w)["message"])

	w = performRequest(h, http.MethodGet, "/api/auth/me", "", auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	h := newHandler(newJWTIssuer(t), Options{}, service.WithRequireChallenge(false))

	msg := "Sign in to SolCraft Poker with address " + testAddress()
	w := postJSON(t, h, "/api/auth/wallet", map[string]string{
		"publicKey": testAddress(), "message": msg, "signature": signWith(testWallet, msg),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	oldAuth := map[string]string{"Authorization": "Bearer " + decode(t, w)["token"].(string)}

	w = performRequest(h, http.MethodPost, "/api/auth/refresh", "", oldAuth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["expiresAt"])
	newAuth := map[string]string{"Authorization": "Bearer " + body["token"].(string)}
	assert.NotEqual(t, oldAuth, newAuth)

	w = performRequest(h, http.MethodGet, "/api/auth/me", "", oldAuth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = performRequest(h, http.MethodPost, "/api/auth/refresh", "", oldAuth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(h, http.MethodGet, "/api/auth/me", "", newAuth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testAddress(), decode(t, w)["address"])
}

func TestRefreshWithoutParser(t *testing.T) {
	iss := &stubIssuer{}
	h := newHandler(iss, Options{})

	w := performRequest(h, http.MethodPost, "/api/auth/refresh", "", map[string]string{"Authorization": "Bearer stub.wallet"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, iss.calls)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	h := newHandler(newJWTIssuer(t), Options{})

	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer not-a-jwt"} {
		w := performRequest(h, http.MethodGet, "/api/auth/me", "", map[string]string{"Authorization": header})
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestVerificationKey(t *testing.T) {
	iss := newJWTIssuer(t)
	h := newHandler(iss, Options{})

	w := performRequest(h, http.MethodGet, "/api/auth/verification-key", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "EdDSA", body["algorithm"])
	key, err := base64.StdEncoding.DecodeString(body["publicKey"].(string))
	require.NoError(t, err)
	assert.Equal(t, []byte(iss.PublicKey()), key)

	h = newHandler(&stubIssuer{}, Options{})
	w = performRequest(h, http.MethodGet, "/api/auth/verification-key", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{})

	w := performRequest(h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.ElementsMatch(t, []any{core.ChainEthereum, core.ChainSolana}, body["chains"])
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w = performRequest(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{})
	id := "6f1c2b8e-4d3a-4c7b-9a51-0e2f8d9c1b74"
	w := performRequest(h, http.MethodGet, "/health", "", map[string]string{headerRequestID: id})
	assert.Equal(t, id, w.Header().Get(headerRequestID))
}

func TestRequestIDMustBeUUID(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{})

	for _, id := range []string{"", "req-42", "x\nlevel=error forged", strings.Repeat("a", 512)} {
		w := performRequest(h, http.MethodGet, "/health", "", map[string]string{headerRequestID: id})
		got := w.Header().Get(headerRequestID)
		assert.NotEqual(t, id, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, got)
	}
}

func TestRateLimit(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", decode(t, w)["error"])

	// Read-only routes are not limited
	w = performRequest(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{RateLimit: 0.001, RateBurst: 1})

	w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, map[string]string{"X-Forwarded-For": "203.0.113.0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 1; i < 5; i++ {
		w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i),
			"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i),
		})
		assert.Equal(t, http.StatusTooManyRequests, w.Code, i)
	}
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1
	h := newHandler(&stubIssuer{}, Options{RateLimit: 0.001, RateBurst: 1, TrustedProxies: []string{"192.0.2.0/24"}})

	for i := 0; i < 3; i++ {
		w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, i)
	}

	w := performRequest(h, http.MethodPost, "/api/auth/challenge", `{}`, map[string]string{"X-Forwarded-For": "203.0.113.0"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSetupRouterRejectsBadProxies(t *testing.T) {
	s := service.NewAuthService(verifier.Default(), &stubIssuer{}, store.NewMemoryStore(),
		accounts.NewMemoryStore(), events.NopPublisher{})
	_, err := SetupRouter(s, Options{TrustedProxies: []string{"proxy.internal"}})
	assert.Error(t, err)
}

func TestBodyLimit(t *testing.T) {
	iss := &stubIssuer{}
	h := newHandler(iss, Options{MaxBodyBytes: 64}, service.WithRequireChallenge(false))

	body := `{"publicKey":"` + testAddress() + `","message":"` + strings.Repeat("a", 256) + `","signature":"abc"}`
	w := performRequest(h, http.MethodPost, "/api/auth/wallet", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, iss.calls)
}

func TestCORS(t *testing.T) {
	h := newHandler(&stubIssuer{}, Options{AllowedOrigins: []string{"https://solcraft.poker"}})

	w := performRequest(h, http.MethodOptions, "/api/auth/wallet", "", map[string]string{
		"Origin":                        "https://solcraft.poker",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "https://solcraft.poker", w.Header().Get("Access-Control-Allow-Origin"))

	w = performRequest(h, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterSweep(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	assert.True(t, l.allow("192.0.2.1"))
	assert.False(t, l.allow("192.0.2.1"))
	assert.Equal(t, 0, l.sweep())

	l.now = func() time.Time { return time.Now().Add(2 * limiterIdleTTL) }
	assert.Equal(t, 1, l.sweep())
	assert.True(t, l.allow("192.0.2.1"))
}
