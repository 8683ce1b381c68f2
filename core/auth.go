package core

import "time"

// CaptchaToken is a solved captcha proof issued by the solving proxy
type CaptchaToken struct {
	Value    string    // Opaque provider token
	SolvedAt time.Time // When the proxy reported the job ready
}

// Challenge represents a server-issued authentication challenge
type Challenge struct {
	LID     string // Locally generated correlation id
	Address string // Ethereum address of the wallet
	Message string // Message to be signed with personal_sign
}

// SessionCredential represents the bearer credential returned by the backend
type SessionCredential struct {
	Token     string    // Raw bearer token
	Address   string    // Wallet the credential was issued for
	Subject   string    // Token subject, when the credential is a JWT
	IssuedAt  time.Time // Zero when unknown
	ExpiresAt time.Time // Zero when unknown
}

// Expired reports whether the credential carries an expiry that has passed.
// Credentials without an expiry never expire locally; the backend decides.
func (c SessionCredential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
