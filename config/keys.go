package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadSigningKey loads the Ed25519 credential signing key from the path in cfg.
// With DevEphemeralKey a fresh key is generated instead; credentials signed
// with it do not survive a restart.
func LoadSigningKey(cfg Config) (ed25519.PrivateKey, error) {
	if cfg.DevEphemeralKey {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("ephemeral key generation failed: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(cfg.SigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading signing key %q: %w", cfg.SigningKeyPath, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing key %q: no PEM block found", cfg.SigningKeyPath)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("signing key %q: unsupported PEM type %q", cfg.SigningKeyPath, block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing key %q: %w", cfg.SigningKeyPath, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %q: must be Ed25519", cfg.SigningKeyPath)
	}

	return key, nil
}
