package dripper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/dripper/adapters/backend"
	"github.com/layer-3/dripper/adapters/captcha"
	"github.com/layer-3/dripper/adapters/events"
	"github.com/layer-3/dripper/adapters/tokenizer"
	"github.com/layer-3/dripper/config"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/eth"
	"github.com/layer-3/dripper/internal/metrics"
	"github.com/layer-3/dripper/ports"
	"github.com/layer-3/dripper/service"
)

const nativeDecimals = 18

// Deps are the backends shared by every wallet pipeline of the process
type Deps struct {
	Store     ports.Store
	Publisher message.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Pipeline is the claim pipeline of one wallet
type Pipeline struct {
	signer  *eth.Signer
	chain   *eth.Client
	auth    *service.AuthService
	watcher *service.Watcher
	token   common.Address
	logger  *slog.Logger
}

// NewPipeline dials the chain and wires every component for the wallet behind key
func NewPipeline(ctx context.Context, cfg config.Config, key string, deps Deps) (*Pipeline, error) {
	signer, err := eth.NewSignerFromHex(key)
	if err != nil {
		return nil, err
	}

	gasPrice, err := eth.ParseGasPriceGwei(cfg.GasPriceGwei)
	if err != nil {
		return nil, fmt.Errorf("GAS_PRICE_GWEI: %w", err)
	}

	chain, err := eth.Dial(ctx, cfg.RPC, signer, eth.GasOverrides{GasPrice: gasPrice, GasLimit: cfg.GasLimit}, cfg.RPCTimeout)
	if err != nil {
		return nil, err
	}

	address := signer.Address()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("wallet", address.Hex())
	rec := deps.Metrics.ForWallet(address.Hex())

	var pub ports.EventPublisher
	if deps.Publisher != nil {
		pub = events.NewWatermillPublisher(deps.Publisher, address.Hex())
	}

	token := common.HexToAddress(cfg.Token)
	recipient := common.HexToAddress(cfg.Recipient)
	api := backend.NewClient(cfg.APIBase, cfg.HTTPTimeout)

	solver := captcha.NewTwoCaptcha(captcha.Config{
		BaseURL:     cfg.CaptchaBaseURL,
		APIKey:      cfg.CaptchaKey,
		Timeout:     cfg.CaptchaTimeout,
		HTTPTimeout: cfg.HTTPTimeout,
	}, logger)

	auth := service.NewAuthService(solver, api, signer, tokenizer.NewJWTTokenizer(), deps.Store, service.AuthConfig{
		ClientID: cfg.ClientID,
		SiteKey:  cfg.TurnstileSiteKey,
		PageURL:  cfg.CaptchaPageURL,
	}, logger)

	builder := service.NewPermitBuilder(signer, chain, deps.Store, token, recipient)
	submitter := service.NewSubmitter(api, pub, rec, service.SubmitterConfig{
		Recipient:      recipient.Hex(),
		Token:          token.Hex(),
		Concurrency:    cfg.Concurrency,
		RequestTimeout: cfg.HTTPTimeout,
	}, logger)

	claims := service.NewClaimService(auth, api, chain, signer, builder, submitter, pub, deps.Store, rec, service.ClaimConfig{
		Token:          token,
		Relayer:        common.HexToAddress(cfg.Relayer),
		Recipient:      recipient,
		MintCount:      cfg.MintCount,
		CallTimeout:    cfg.RPCTimeout,
		ApproveTimeout: cfg.ApproveTimeout,
	}, logger)

	watcher := service.NewWatcher(chain, claims, pub, rec, service.WatcherConfig{
		Addresses:    cfg.WatchAddresses,
		PollInterval: cfg.PollInterval,
		CallTimeout:  cfg.RPCTimeout,
	}, logger)

	return &Pipeline{
		signer:  signer,
		chain:   chain,
		auth:    auth,
		watcher: watcher,
		token:   token,
		logger:  logger,
	}, nil
}

// Boot logs the wallet balances and authenticates. An error here is fatal for the wallet.
func (p *Pipeline) Boot(ctx context.Context) error {
	p.logBalances(ctx)

	if _, err := p.auth.Authenticate(ctx); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) logBalances(ctx context.Context) {
	address := p.signer.Address()

	native, err := p.chain.NativeBalance(ctx, address)
	if err != nil {
		p.logger.Warn("failed to read native balance", "error", err)
	} else {
		p.logger.Info("native balance", "amount", eth.FormatUnits(native, nativeDecimals, 4))
	}

	decimals, err := p.chain.Decimals(ctx, p.token)
	if err != nil {
		p.logger.Warn("failed to read token decimals", "error", err)
		return
	}
	balance, err := p.chain.BalanceOf(ctx, p.token, address)
	if err != nil {
		p.logger.Warn("failed to read token balance", "error", err)
		return
	}
	p.logger.Info("token balance", "token", p.token.Hex(), "amount", eth.FormatUnits(balance, decimals, 4))
}

// Run watches for distributions until ctx ends
func (p *Pipeline) Run(ctx context.Context) error {
	err := p.watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Wallet returns the address of the pipeline's wallet
func (p *Pipeline) Wallet() common.Address {
	return p.signer.Address()
}

// State returns the watcher snapshot
func (p *Pipeline) State() core.WatchState {
	return p.watcher.State()
}

// Close releases the chain connection
func (p *Pipeline) Close() {
	p.chain.Close()
}
