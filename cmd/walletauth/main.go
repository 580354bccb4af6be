package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/solcraft/walletauth/adapters/accounts"
	"github.com/solcraft/walletauth/adapters/events"
	"github.com/solcraft/walletauth/adapters/issuer"
	"github.com/solcraft/walletauth/adapters/store"
	"github.com/solcraft/walletauth/adapters/verifier"
	"github.com/solcraft/walletauth/config"
	"github.com/solcraft/walletauth/ports"
	"github.com/solcraft/walletauth/service"
	"github.com/solcraft/walletauth/transport/http"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer memguard.Purge()

	app := &cli.App{
		Name:   "walletauth",
		Usage:  "wallet sign-in service for SolCraft",
		Flags:  config.Flags(),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("walletauth stopped")
		memguard.Purge()
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close resource")
			}
		}
	}()

	var (
		challengeStore ports.Store
		eventPub       ports.EventPublisher = events.NopPublisher{}
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		closers = append(closers, redisClient)

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			events.NewLogger(log.Logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		closers = append(closers, publisher)

		challengeStore = store.NewRedisStore(redisClient)
		eventPub = events.NewWatermillPublisher(publisher)
		log.Info().Msg("using redis for challenges and events")
	} else {
		memStore := store.NewMemoryStore()
		go memStore.Run(ctx, time.Minute)
		challengeStore = memStore
		log.Warn().Msg("no redis configured, challenges are kept in memory")
	}

	var accountStore ports.AccountStore
	if cfg.PostgresDSN != "" {
		pg, err := accounts.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		closers = append(closers, pg)
		accountStore = pg
	} else {
		accountStore = accounts.NewMemoryStore()
		log.Warn().Msg("no postgres configured, accounts are kept in memory")
	}

	credentialIssuer, err := newIssuer(ctx, cfg)
	if err != nil {
		return err
	}
	if j, ok := credentialIssuer.(*issuer.JWTIssuer); ok {
		defer j.Destroy()
	}

	authService := service.NewAuthService(
		verifier.Default(),
		credentialIssuer,
		challengeStore,
		accountStore,
		eventPub,
		service.WithChallengeTTL(cfg.ChallengeTTL),
		service.WithDomain(cfg.Domain),
		service.WithRequireChallenge(cfg.RequireChallenge),
	)
	if !cfg.RequireChallenge {
		log.Warn().Msg("challenges are not required, signed messages can be replayed")
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := http.SetupRouter(authService, http.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateBurst:      cfg.RateBurst,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("issuer", cfg.Issuer).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newIssuer(ctx context.Context, cfg config.Config) (ports.Issuer, error) {
	switch cfg.Issuer {
	case config.IssuerFirebase:
		f, err := issuer.NewFirebaseIssuer(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		if cfg.DevEphemeralKey {
			log.Warn().Msg("using an ephemeral signing key, credentials will not survive a restart")
		}
		key, err := config.LoadSigningKey(cfg)
		if err != nil {
			return nil, err
		}
		j, err := issuer.NewJWTIssuer(key,
			issuer.WithIssuerName(cfg.IssuerName),
			issuer.WithTokenTTL(cfg.TokenTTL),
		)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
