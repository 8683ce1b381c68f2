package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

// APIError is a non-success answer from the faucet backend
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Client talks to the faucet backend over HTTPS
type Client struct {
	http *resty.Client
}

var (
	_ ports.AuthAPI   = (*Client)(nil)
	_ ports.FaucetAPI = (*Client)(nil)
)

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{http: client}
}

type verifyResponse struct {
	JWT   string `json:"jwt"`
	Token string `json:"token"`
}

type dripPreflight struct {
	RecipientAddress string `json:"recipientAddress"`
}

type paymentRequired struct {
	PaymentRequirements core.PaymentRequirement `json:"paymentRequirements"`
}

type paymentPayload struct {
	Token   string      `json:"token"`
	Payload core.Permit `json:"payload"`
}

type requirementRef struct {
	Network         string `json:"network"`
	RelayerContract string `json:"relayerContract"`
}

type dripBody struct {
	RecipientAddress    string         `json:"recipientAddress"`
	PaymentPayload      paymentPayload `json:"paymentPayload"`
	PaymentRequirements requirementRef `json:"paymentRequirements"`
}

// Challenge requests the message the wallet has to sign
func (c *Client) Challenge(ctx context.Context, req ports.ChallengeRequest) (string, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/auth/web3/challenge")
	if err != nil {
		return "", fmt.Errorf("challenge request failed: %w", err)
	}
	if resp.IsError() {
		return "", newAPIError(resp)
	}

	message := challengeMessage(resp.Body())
	if message == "" {
		return "", errors.New("challenge response is empty")
	}
	return message, nil
}

// Verify exchanges the signed challenge for a session token
func (c *Client) Verify(ctx context.Context, req ports.VerifyRequest) (string, error) {
	var out verifyResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/auth/web3/verify")
	if err != nil {
		return "", fmt.Errorf("verify request failed: %w", err)
	}
	if resp.IsError() {
		return "", newAPIError(resp)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to decode verify response: %w", err)
	}

	if out.JWT != "" {
		return out.JWT, nil
	}
	if out.Token != "" {
		return out.Token, nil
	}
	return "", errors.New("verify response carries no token")
}

// RequestPayment performs the pre-flight drip that the backend answers with 402
func (c *Client) RequestPayment(ctx context.Context, credential core.SessionCredential, recipient string) (core.PaymentRequirement, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(credential.Token).
		SetBody(dripPreflight{RecipientAddress: recipient}).
		Post("/faucet/drip")
	if err != nil {
		return core.PaymentRequirement{}, fmt.Errorf("%w: %v", core.ErrPaymentRequirementUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusPaymentRequired:
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.PaymentRequirement{}, fmt.Errorf("%w: %v", core.ErrCredentialRejected, newAPIError(resp))
	default:
		return core.PaymentRequirement{}, fmt.Errorf("%w: unexpected status %d", core.ErrPaymentRequirementUnavailable, resp.StatusCode())
	}

	var out paymentRequired
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return core.PaymentRequirement{}, fmt.Errorf("%w: %v", core.ErrPaymentRequirementUnavailable, err)
	}
	req := out.PaymentRequirements
	if req.Amount == "" || req.RelayerContract == "" {
		return core.PaymentRequirement{}, fmt.Errorf("%w: incomplete requirement", core.ErrPaymentRequirementUnavailable)
	}
	return req, nil
}

// Drip submits one signed permit
func (c *Client) Drip(ctx context.Context, credential core.SessionCredential, req ports.DripRequest) error {
	body := dripBody{
		RecipientAddress: req.Recipient,
		PaymentPayload: paymentPayload{
			Token:   req.Token,
			Payload: req.Permit,
		},
		PaymentRequirements: requirementRef{
			Network:         req.Requirement.Network,
			RelayerContract: req.Requirement.RelayerContract,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(credential.Token).
		SetBody(body).
		Post("/faucet/drip")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

func newAPIError(resp *resty.Response) *APIError {
	return &APIError{Status: resp.StatusCode(), Message: errorMessage(resp.Body())}
}

// errorMessage prefers the error field, then message, then the raw body
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case nil:
			default:
				if raw, err := json.Marshal(v); err == nil {
					return string(raw)
				}
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// challengeMessage accepts a bare string, a JSON string or an object with a message field
func challengeMessage(body []byte) string {
	var obj struct {
		Message   string `json:"message"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Challenge != "" {
			return obj.Challenge
		}
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(body))
}
