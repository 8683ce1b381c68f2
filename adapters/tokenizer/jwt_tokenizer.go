package tokenizer

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

// JWTTokenizer reads session credentials issued by the backend.
// The backend owns the signing key, so tokens are parsed without verification
// and only used to learn the subject and expiry.
type JWTTokenizer struct {
	parser *jwt.Parser
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer() ports.Tokenizer {
	return &JWTTokenizer{parser: jwt.NewParser()}
}

// TokenToCredential converts a bearer token to a SessionCredential.
// Non-JWT tokens are accepted as opaque credentials without expiry.
func (j *JWTTokenizer) TokenToCredential(token string, address string) (core.SessionCredential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.SessionCredential{}, fmt.Errorf("empty session token: %w", core.ErrAuthFailed)
	}

	credential := core.SessionCredential{
		Token:   token,
		Address: address,
	}
	if strings.Count(token, ".") != 2 {
		return credential, nil
	}

	claims := &SessionClaims{}
	if _, _, err := j.parser.ParseUnverified(token, claims); err != nil {
		// Opaque tokens that merely look like JWTs are still usable
		return credential, nil
	}

	credential.Subject = claims.Subject
	if claims.IssuedAt != nil {
		credential.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		credential.ExpiresAt = claims.ExpiresAt.Time
	}
	return credential, nil
}
