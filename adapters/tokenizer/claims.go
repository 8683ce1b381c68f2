package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims read from a backend session credential.
// Only registered claims are used; extra fields are ignored.
type SessionClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"walletAddress,omitempty"`
}
