package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/solcraft/walletauth/service"
	"golang.org/x/time/rate"
)

const DefaultMaxBodyBytes = 16 << 10

// Options tunes the router
type Options struct {
	AllowedOrigins []string
	RateLimit      rate.Limit // Requests per second per client IP on sign-in routes, 0 disables limiting
	RateBurst      int
	MaxBodyBytes   int64
	TrustedProxies []string // Proxies whose X-Forwarded-For is believed, none by default
}

// SetupRouter sets up the Gin router and wraps it with CORS when origins are configured
func SetupRouter(authService *service.AuthService, opts Options) (http.Handler, error) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	router := gin.New()
	// Client IPs drive rate limiting, so forwarded headers are only read from known proxies
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(gin.Recovery(), RequestLogger(), LimitBody(opts.MaxBodyBytes))

	// Create handlers
	handlers := NewAuthHandlers(authService)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	// Sign-in routes
	signIn := api.Group("")
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		signIn.Use(newIPRateLimiter(opts.RateLimit, burst).middleware())
	}
	{
		signIn.POST("/auth/challenge", handlers.Challenge)
		signIn.POST("/auth/wallet", handlers.Wallet)
		signIn.POST("/wallet-auth", handlers.LegacyWalletAuth)
	}

	api.GET("/auth/verification-key", handlers.VerificationKey)

	// Protected routes
	protected := api.Group("/auth")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/me", handlers.Me)
		protected.POST("/refresh", handlers.Refresh)
		protected.POST("/logout", handlers.Logout)
	}

	if len(opts.AllowedOrigins) == 0 {
		return router, nil
	}

	return cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         600,
	}).Handler(router), nil
}
