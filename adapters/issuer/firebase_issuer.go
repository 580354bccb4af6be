package issuer

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/ports"
	"google.golang.org/api/option"
)

// Firebase custom tokens are accepted by signInWithCustomToken for one hour
const firebaseCustomTokenTTL = time.Hour

type customTokenMinter interface {
	CustomTokenWithClaims(ctx context.Context, uid string, devClaims map[string]interface{}) (string, error)
}

// FirebaseIssuer mints Firebase custom tokens so web clients can open a
// Firebase session for the wallet address
type FirebaseIssuer struct {
	client customTokenMinter
	now    func() time.Time
}

var _ ports.Issuer = (*FirebaseIssuer)(nil)

// NewFirebaseIssuer initializes the Admin SDK for projectID. An empty
// credentialsFile falls back to application default credentials.
func NewFirebaseIssuer(ctx context.Context, projectID, credentialsFile string) (*FirebaseIssuer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}

	return newFirebaseIssuer(client), nil
}

func newFirebaseIssuer(client customTokenMinter) *FirebaseIssuer {
	return &FirebaseIssuer{client: client, now: time.Now}
}

// Issue mints a custom token whose uid is the wallet address
func (f *FirebaseIssuer) Issue(ctx context.Context, subject string, chain string) (core.IssuedCredential, error) {
	now := f.now()
	token, err := f.client.CustomTokenWithClaims(ctx, subject, map[string]interface{}{
		"chain": chain,
	})
	if err != nil {
		return core.IssuedCredential{}, fmt.Errorf("failed to create custom token: %v: %w", err, core.ErrIssuerUnavailable)
	}

	return core.IssuedCredential{
		Token:     token,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(firebaseCustomTokenTTL),
	}, nil
}
