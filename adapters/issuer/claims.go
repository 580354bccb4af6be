package issuer

import "github.com/golang-jwt/jwt/v5"

// AudienceSession is the audience of every credential minted by JWTIssuer
const AudienceSession = "solcraft:session"

// CredentialClaims combines standard claims with wallet-specific ones
type CredentialClaims struct {
	jwt.RegisteredClaims
	Chain string `json:"chain,omitempty"`
}
