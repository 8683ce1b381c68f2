package ports

import (
	"context"

	"github.com/layer-3/dripper/core"
)

// ChallengeRequest is the body of the challenge call
type ChallengeRequest struct {
	WalletType     string `json:"walletType"`
	WalletAddress  string `json:"walletAddress"`
	ClientID       string `json:"clientId"`
	LID            string `json:"lid"`
	TurnstileToken string `json:"turnstileToken"`
}

// VerifyRequest is the body of the verify call
type VerifyRequest struct {
	WalletType     string `json:"walletType"`
	WalletAddress  string `json:"walletAddress"`
	ClientID       string `json:"clientId"`
	LID            string `json:"lid"`
	Signature      string `json:"signature"`
	TurnstileToken string `json:"turnstileToken"`
}

// AuthAPI is the challenge/verify half of the backend
type AuthAPI interface {
	Challenge(ctx context.Context, req ChallengeRequest) (string, error)
	Verify(ctx context.Context, req VerifyRequest) (string, error)
}

// DripRequest carries one permit to the faucet
type DripRequest struct {
	Recipient   string
	Token       string
	Permit      core.Permit
	Requirement core.PaymentRequirement
}

// FaucetAPI is the drip half of the backend
type FaucetAPI interface {
	// RequestPayment performs the pre-flight drip that answers 402 with the requirement
	RequestPayment(ctx context.Context, credential core.SessionCredential, recipient string) (core.PaymentRequirement, error)
	Drip(ctx context.Context, credential core.SessionCredential, req DripRequest) error
}
