package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

const walletTypeEVM = "evm"

// AuthConfig holds the static inputs of the auth flow
type AuthConfig struct {
	ClientID string
	SiteKey  string
	PageURL  string
}

// AuthService handles the captcha, challenge and verify exchange
type AuthService struct {
	solver    ports.CaptchaSolver
	api       ports.AuthAPI
	wallet    ports.Wallet
	tokenizer ports.Tokenizer
	store     ports.Store
	cfg       AuthConfig
	logger    *slog.Logger

	sessionTTL time.Duration
	newLID     func() string
	now        func() time.Time

	mu     sync.Mutex
	cached *core.SessionCredential
}

// NewAuthService creates a new authentication service
func NewAuthService(
	solver ports.CaptchaSolver,
	api ports.AuthAPI,
	wallet ports.Wallet,
	tokenizer ports.Tokenizer,
	store ports.Store,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		solver:     solver,
		api:        api,
		wallet:     wallet,
		tokenizer:  tokenizer,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		sessionTTL: 24 * time.Hour,
		newLID:     func() string { return uuid.New().String() },
		now:        time.Now,
	}
}

func (s *AuthService) sessionKey() string {
	return "session:" + strings.ToLower(s.wallet.Address().Hex())
}

// Authenticate returns the process-wide credential, running the flow on first use.
// Every failure wraps core.ErrAuthFailed.
func (s *AuthService) Authenticate(ctx context.Context) (core.SessionCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	if cred, ok := s.restore(ctx); ok {
		s.logger.Info("reusing stored session", "expires_at", cred.ExpiresAt)
		s.cached = &cred
		return cred, nil
	}

	cred, err := s.login(ctx)
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("%w: %w", core.ErrAuthFailed, err)
	}

	s.persist(ctx, cred)
	s.cached = &cred
	return cred, nil
}

func (s *AuthService) login(ctx context.Context) (core.SessionCredential, error) {
	address := s.wallet.Address().Hex()

	s.logger.Info("solving captcha")
	captcha, err := s.solver.Solve(ctx, s.cfg.SiteKey, s.cfg.PageURL)
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("captcha: %w", err)
	}
	s.logger.Info("captcha solved")

	challenge := core.Challenge{LID: s.newLID(), Address: address}
	challenge.Message, err = s.api.Challenge(ctx, ports.ChallengeRequest{
		WalletType:     walletTypeEVM,
		WalletAddress:  address,
		ClientID:       s.cfg.ClientID,
		LID:            challenge.LID,
		TurnstileToken: captcha.Value,
	})
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("challenge: %w", err)
	}

	signature, err := s.wallet.SignMessage([]byte(challenge.Message))
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("sign challenge: %w", err)
	}

	token, err := s.api.Verify(ctx, ports.VerifyRequest{
		WalletType:     walletTypeEVM,
		WalletAddress:  address,
		ClientID:       s.cfg.ClientID,
		LID:            challenge.LID,
		Signature:      signature,
		TurnstileToken: captcha.Value,
	})
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("verify: %w", err)
	}

	cred, err := s.tokenizer.TokenToCredential(token, address)
	if err != nil {
		return core.SessionCredential{}, fmt.Errorf("credential: %w", err)
	}
	s.logger.Info("authenticated", "lid", challenge.LID)
	return cred, nil
}

func (s *AuthService) restore(ctx context.Context) (core.SessionCredential, bool) {
	if s.store == nil {
		return core.SessionCredential{}, false
	}

	token, err := s.store.Get(ctx, s.sessionKey())
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("failed to read stored session", "error", err)
		}
		return core.SessionCredential{}, false
	}

	cred, err := s.tokenizer.TokenToCredential(token, s.wallet.Address().Hex())
	if err != nil || cred.Expired(s.now()) {
		return core.SessionCredential{}, false
	}
	return cred, true
}

func (s *AuthService) persist(ctx context.Context, cred core.SessionCredential) {
	if s.store == nil {
		return
	}

	ttl := s.sessionTTL
	if !cred.ExpiresAt.IsZero() {
		ttl = cred.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return
	}

	if err := s.store.Set(ctx, s.sessionKey(), cred.Token, ttl); err != nil {
		s.logger.Warn("failed to store session", "error", err)
	}
}
