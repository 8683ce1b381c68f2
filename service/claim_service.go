package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/eth"
	"github.com/layer-3/dripper/internal/metrics"
	"github.com/layer-3/dripper/ports"
)

// CredentialSource yields the session credential for claim runs
type CredentialSource interface {
	Authenticate(ctx context.Context) (core.SessionCredential, error)
}

// ClaimConfig holds the addresses and size of a claim run
type ClaimConfig struct {
	Token     common.Address
	Relayer   common.Address // spender approved for the token
	Recipient common.Address
	MintCount int
	// CallTimeout bounds each token read and each summary write
	CallTimeout time.Duration
	// ApproveTimeout bounds the approval from send to receipt
	ApproveTimeout time.Duration
}

// LastRunKey is the store key holding the latest summary of a wallet
func LastRunKey(wallet common.Address) string {
	return "run:last:" + strings.ToLower(wallet.Hex())
}

// ClaimService runs one claim cycle: requirement, approval, permits, submission
type ClaimService struct {
	credentials CredentialSource
	faucet      ports.FaucetAPI
	tokens      ports.TokenClient
	wallet      ports.Wallet
	builder     *PermitBuilder
	submitter   *Submitter
	events      ports.EventPublisher
	store       ports.Store
	metrics     *metrics.Recorder
	cfg         ClaimConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewClaimService creates a claim service. events, store and rec may be nil.
func NewClaimService(
	credentials CredentialSource,
	faucet ports.FaucetAPI,
	tokens ports.TokenClient,
	wallet ports.Wallet,
	builder *PermitBuilder,
	submitter *Submitter,
	events ports.EventPublisher,
	store ports.Store,
	rec *metrics.Recorder,
	cfg ClaimConfig,
	logger *slog.Logger,
) *ClaimService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ApproveTimeout <= 0 {
		cfg.ApproveTimeout = DefaultApproveTimeout
	}
	return &ClaimService{
		credentials: credentials,
		faucet:      faucet,
		tokens:      tokens,
		wallet:      wallet,
		builder:     builder,
		submitter:   submitter,
		events:      events,
		store:       store,
		metrics:     rec,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// RunClaim executes a full claim run for the trigger. Errors are structural:
// per-permit failures are reported in the summary instead.
func (c *ClaimService) RunClaim(ctx context.Context, trigger core.Trigger) (core.Summary, error) {
	summary, err := c.runClaim(ctx, trigger)
	if err != nil {
		c.metrics.ClaimRun("error")
		return summary, err
	}
	c.metrics.ClaimRun("ok")
	return summary, nil
}

func (c *ClaimService) runClaim(ctx context.Context, trigger core.Trigger) (core.Summary, error) {
	runID := uuid.New().String()
	logger := c.logger.With("run", runID)

	credential, err := c.credentials.Authenticate(ctx)
	if err != nil {
		return core.Summary{}, err
	}

	logger.Info("fetching payment requirement")
	req, err := c.faucet.RequestPayment(ctx, credential, c.cfg.Recipient.Hex())
	if err != nil {
		return core.Summary{}, err
	}
	logger.Info("payment requirement",
		"amount", req.Amount,
		"network", req.Network,
		"relayer", req.RelayerContract,
	)

	needed, err := c.totalAmount(req.Amount)
	if err != nil {
		return core.Summary{}, err
	}
	if err := c.ensureAllowance(ctx, logger, needed); err != nil {
		return core.Summary{}, err
	}
	c.checkBalance(ctx, logger, needed)

	logger.Info("building permits", "count", c.cfg.MintCount)
	permits, err := c.builder.BuildBatch(ctx, c.cfg.MintCount, req)
	if err != nil {
		return core.Summary{}, fmt.Errorf("failed to build permits: %w", err)
	}

	run := core.ClaimRun{
		ID:          runID,
		Trigger:     trigger,
		Requirement: req,
		Permits:     permits,
		StartedAt:   c.now(),
	}

	logger.Info("start minting")
	summary := c.submitter.Submit(ctx, run, credential)
	logger.Info("claim run finished",
		"success", summary.Success,
		"already_claimed", summary.AlreadyClaimed,
		"failed", summary.Failed,
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt),
	)

	c.record(ctx, logger, summary)
	return summary, nil
}

func (c *ClaimService) totalAmount(amount string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidAmount, amount)
	}
	return value.Mul(value, big.NewInt(int64(c.cfg.MintCount))), nil
}

// ensureAllowance approves the maximum amount only when the current allowance is short
func (c *ClaimService) ensureAllowance(ctx context.Context, logger *slog.Logger, needed *big.Int) error {
	owner := c.wallet.Address()
	callCtx, cancel := withTimeout(ctx, c.cfg.CallTimeout)
	allowance, err := c.tokens.Allowance(callCtx, c.cfg.Token, owner, c.cfg.Relayer)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: allowance: %w", core.ErrApprovalFailed, err)
	}
	if allowance.Cmp(needed) >= 0 {
		logger.Debug("allowance sufficient", "allowance", allowance)
		return nil
	}

	logger.Info("approving unlimited allowance", "spender", c.cfg.Relayer.Hex())
	approveCtx, cancel := withTimeout(ctx, c.cfg.ApproveTimeout)
	defer cancel()
	hash, err := c.tokens.Approve(approveCtx, c.cfg.Token, c.cfg.Relayer, new(big.Int).Set(math.MaxBig256))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: not mined within %s: %w", core.ErrApprovalFailed, c.cfg.ApproveTimeout, err)
		}
		return fmt.Errorf("%w: %w", core.ErrApprovalFailed, err)
	}
	logger.Info("approval mined", "tx", hash.Hex())
	return nil
}

// checkBalance only warns, the backend is the one rejecting underfunded permits
func (c *ClaimService) checkBalance(ctx context.Context, logger *slog.Logger, needed *big.Int) {
	ctx, cancel := withTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	balance, err := c.tokens.BalanceOf(ctx, c.cfg.Token, c.wallet.Address())
	if err != nil {
		logger.Warn("failed to read token balance", "error", err)
		return
	}
	if balance.Cmp(needed) < 0 {
		decimals, err := c.tokens.Decimals(ctx, c.cfg.Token)
		if err != nil {
			decimals = 18
		}
		logger.Warn("token balance below run total",
			"balance", eth.FormatUnits(balance, decimals, 4),
			"needed", eth.FormatUnits(needed, decimals, 4),
		)
	}
}

func (c *ClaimService) record(ctx context.Context, logger *slog.Logger, summary core.Summary) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
	defer cancel()

	if c.events != nil {
		if err := c.events.PublishSummary(ctx, summary); err != nil {
			logger.Warn("failed to publish summary", "error", err)
		}
	}

	if c.store != nil {
		raw, err := json.Marshal(summary)
		if err != nil {
			logger.Warn("failed to encode summary", "error", err)
			return
		}
		if err := c.store.Set(ctx, LastRunKey(c.wallet.Address()), string(raw), 0); err != nil {
			logger.Warn("failed to store summary", "error", err)
		}
	}
}
