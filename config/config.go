package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
)

const (
	IssuerJWT      = "jwt"
	IssuerFirebase = "firebase"

	envPrefix = "WALLETAUTH_"
)

// Flag names
const (
	FlagListenAddr              = "listen-addr"
	FlagReadTimeout             = "read-timeout"
	FlagWriteTimeout            = "write-timeout"
	FlagIdleTimeout             = "idle-timeout"
	FlagAllowedOrigins          = "allowed-origins"
	FlagTrustedProxies          = "trusted-proxies"
	FlagRedisURL                = "redis-url"
	FlagPostgresDSN             = "postgres-dsn"
	FlagIssuer                  = "issuer"
	FlagIssuerName              = "issuer-name"
	FlagSigningKeyPath          = "signing-key"
	FlagDevEphemeralKey         = "dev-ephemeral-key"
	FlagTokenTTL                = "token-ttl"
	FlagFirebaseProjectID       = "firebase-project-id"
	FlagFirebaseCredentialsFile = "firebase-credentials"
	FlagChallengeTTL            = "challenge-ttl"
	FlagDomain                  = "domain"
	FlagRequireChallenge        = "require-challenge"
	FlagRateLimit               = "rate-limit"
	FlagRateBurst               = "rate-burst"
	FlagLogLevel                = "log-level"
	FlagLogPretty               = "log-pretty"
)

// Config holds every setting of the service. It is built once at startup
// and passed down explicitly.
type Config struct {
	ListenAddr     string        `validate:"required,hostname_port"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	AllowedOrigins []string      `validate:"dive,url"`
	TrustedProxies []string      `validate:"dive,ip|cidr"`

	RedisURL    string `validate:"omitempty,url"`
	PostgresDSN string

	Issuer                  string `validate:"oneof=jwt firebase"`
	IssuerName              string `validate:"required"`
	SigningKeyPath          string `validate:"omitempty,file"`
	DevEphemeralKey         bool
	TokenTTL                time.Duration `validate:"gt=0"`
	FirebaseProjectID       string
	FirebaseCredentialsFile string `validate:"omitempty,file"`

	ChallengeTTL     time.Duration `validate:"gt=0"`
	Domain           string
	RequireChallenge bool

	RateLimit float64 `validate:"gte=0"`
	RateBurst int     `validate:"gte=0"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogPretty bool
}

func env(name string) []string {
	return []string{envPrefix + name}
}

// Flags returns the command line flags; every flag can also be set through
// its WALLETAUTH_* environment variable
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: FlagListenAddr, Value: ":8080", Usage: "HTTP listen address", EnvVars: env("LISTEN_ADDR")},
		&cli.DurationFlag{Name: FlagReadTimeout, Value: 10 * time.Second, Usage: "HTTP read timeout", EnvVars: env("READ_TIMEOUT")},
		&cli.DurationFlag{Name: FlagWriteTimeout, Value: 10 * time.Second, Usage: "HTTP write timeout", EnvVars: env("WRITE_TIMEOUT")},
		&cli.DurationFlag{Name: FlagIdleTimeout, Value: time.Minute, Usage: "HTTP idle timeout", EnvVars: env("IDLE_TIMEOUT")},
		&cli.StringSliceFlag{Name: FlagAllowedOrigins, Usage: "origins allowed by CORS", EnvVars: env("ALLOWED_ORIGINS")},
		&cli.StringSliceFlag{Name: FlagTrustedProxies, Usage: "proxy IPs or CIDRs allowed to set X-Forwarded-For (none when empty)", EnvVars: env("TRUSTED_PROXIES")},

		&cli.StringFlag{Name: FlagRedisURL, Usage: "redis URL for challenges, revocations and events (memory when empty)", EnvVars: env("REDIS_URL")},
		&cli.StringFlag{Name: FlagPostgresDSN, Usage: "postgres DSN for wallet accounts (memory when empty)", EnvVars: env("POSTGRES_DSN")},

		&cli.StringFlag{Name: FlagIssuer, Value: IssuerJWT, Usage: "credential issuer: jwt or firebase", EnvVars: env("ISSUER")},
		&cli.StringFlag{Name: FlagIssuerName, Value: "solcraft-walletauth", Usage: "iss claim of minted credentials", EnvVars: env("ISSUER_NAME")},
		&cli.StringFlag{Name: FlagSigningKeyPath, Usage: "PEM file with the PKCS#8 Ed25519 signing key", EnvVars: env("SIGNING_KEY")},
		&cli.BoolFlag{Name: FlagDevEphemeralKey, Usage: "generate a throwaway signing key (development only)", EnvVars: env("DEV_EPHEMERAL_KEY")},
		&cli.DurationFlag{Name: FlagTokenTTL, Value: time.Hour, Usage: "credential lifetime", EnvVars: env("TOKEN_TTL")},
		&cli.StringFlag{Name: FlagFirebaseProjectID, Usage: "firebase project id", EnvVars: env("FIREBASE_PROJECT_ID")},
		&cli.StringFlag{Name: FlagFirebaseCredentialsFile, Usage: "firebase service account file (application default credentials when empty)", EnvVars: env("FIREBASE_CREDENTIALS")},

		&cli.DurationFlag{Name: FlagChallengeTTL, Value: 5 * time.Minute, Usage: "sign-in challenge lifetime", EnvVars: env("CHALLENGE_TTL")},
		&cli.StringFlag{Name: FlagDomain, Usage: "domain sign-in messages are scoped to", EnvVars: env("DOMAIN")},
		&cli.BoolFlag{Name: FlagRequireChallenge, Value: true, Usage: "require a server-issued nonce in every signed message", EnvVars: env("REQUIRE_CHALLENGE")},

		&cli.Float64Flag{Name: FlagRateLimit, Value: 5, Usage: "sign-in requests per second per IP, 0 disables", EnvVars: env("RATE_LIMIT")},
		&cli.IntFlag{Name: FlagRateBurst, Value: 10, Usage: "sign-in burst per IP", EnvVars: env("RATE_BURST")},

		&cli.StringFlag{Name: FlagLogLevel, Value: "info", Usage: "log level", EnvVars: env("LOG_LEVEL")},
		&cli.BoolFlag{Name: FlagLogPretty, Usage: "human readable console logs", EnvVars: env("LOG_PRETTY")},
	}
}

// FromContext reads the configuration out of parsed flags and validates it
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		ListenAddr:     c.String(FlagListenAddr),
		ReadTimeout:    c.Duration(FlagReadTimeout),
		WriteTimeout:   c.Duration(FlagWriteTimeout),
		IdleTimeout:    c.Duration(FlagIdleTimeout),
		AllowedOrigins: c.StringSlice(FlagAllowedOrigins),
		TrustedProxies: c.StringSlice(FlagTrustedProxies),

		RedisURL:    c.String(FlagRedisURL),
		PostgresDSN: c.String(FlagPostgresDSN),

		Issuer:                  c.String(FlagIssuer),
		IssuerName:              c.String(FlagIssuerName),
		SigningKeyPath:          c.String(FlagSigningKeyPath),
		DevEphemeralKey:         c.Bool(FlagDevEphemeralKey),
		TokenTTL:                c.Duration(FlagTokenTTL),
		FirebaseProjectID:       c.String(FlagFirebaseProjectID),
		FirebaseCredentialsFile: c.String(FlagFirebaseCredentialsFile),

		ChallengeTTL:     c.Duration(FlagChallengeTTL),
		Domain:           c.String(FlagDomain),
		RequireChallenge: c.Bool(FlagRequireChallenge),

		RateLimit: c.Float64(FlagRateLimit),
		RateBurst: c.Int(FlagRateBurst),

		LogLevel:  c.String(FlagLogLevel),
		LogPretty: c.Bool(FlagLogPretty),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the rules that span several fields
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation of config failed: %w", err)
	}

	switch c.Issuer {
	case IssuerJWT:
		if c.DevEphemeralKey && c.SigningKeyPath != "" {
			return fmt.Errorf("invalid config: --%s and --%s are mutually exclusive", FlagDevEphemeralKey, FlagSigningKeyPath)
		}
		if !c.DevEphemeralKey && c.SigningKeyPath == "" {
			return fmt.Errorf("invalid --%s: must not be empty (or set --%s for dev mode)", FlagSigningKeyPath, FlagDevEphemeralKey)
		}
	case IssuerFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("invalid --%s: required with the firebase issuer", FlagFirebaseProjectID)
		}
	}

	return nil
}
