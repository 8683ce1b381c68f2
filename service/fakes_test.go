package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/eth"
	"github.com/layer-3/dripper/ports"
	"github.com/stretchr/testify/require"
)

var (
	testToken     = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testRelayer   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestWallet(t *testing.T) *eth.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return eth.NewSigner(key)
}

type fakeChain struct {
	mu      sync.Mutex
	chainID *big.Int
	heads   []uint64 // successive BlockNumber answers, the last one repeats
	calls   int
	blocks  map[uint64][]core.BlockTx
	headErr error
	scanned []uint64

	// hang makes node calls block until their context ends
	hang     bool
	hangScan bool
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainID == nil {
		return big.NewInt(56), nil
	}
	return f.chainID, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if f.hang {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return 0, ctx.Err()
	}
	if f.headErr != nil {
		return 0, f.headErr
	}
	if i >= len(f.heads) {
		i = len(f.heads) - 1
	}
	return f.heads[i], nil
}

func (f *fakeChain) BlockSenders(ctx context.Context, number uint64) ([]core.BlockTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scanned = append(f.scanned, number)
	if f.hangScan {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return nil, ctx.Err()
	}
	return f.blocks[number], nil
}

func (f *fakeChain) scannedBlocks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.scanned...)
}

// fakeFaucet answers the pre-flight with a 402 requirement and drips with drip
type fakeFaucet struct {
	requirement core.PaymentRequirement
	reqErr      error
	drip        func(req ports.DripRequest) error
	delay       time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	drips       atomic.Int32

	mu     sync.Mutex
	nonces []string
}

func (f *fakeFaucet) RequestPayment(ctx context.Context, credential core.SessionCredential, recipient string) (core.PaymentRequirement, error) {
	if f.reqErr != nil {
		return core.PaymentRequirement{}, f.reqErr
	}
	return f.requirement, nil
}

func (f *fakeFaucet) Drip(ctx context.Context, credential core.SessionCredential, req ports.DripRequest) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	f.drips.Add(1)

	f.mu.Lock()
	f.nonces = append(f.nonces, req.Permit.Authorization.Nonce)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.drip == nil {
		return nil
	}
	return f.drip(req)
}

type fakeTokens struct {
	mu         sync.Mutex
	allowance  *big.Int
	balance    *big.Int
	approvals  int
	approveErr error

	// hangApprove keeps the approval pending until its context ends
	hangApprove bool
}

func (f *fakeTokens) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeTokens) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return 18, nil
}

func (f *fakeTokens) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return f.balance, nil
}

func (f *fakeTokens) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

func (f *fakeTokens) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if f.hangApprove {
		<-ctx.Done()
		return common.Hash{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	f.approvals++
	f.allowance = new(big.Int).Set(amount)
	return common.HexToHash("0xabc"), nil
}

type staticCredentials struct {
	cred core.SessionCredential
	err  error
}

func (s staticCredentials) Authenticate(ctx context.Context) (core.SessionCredential, error) {
	return s.cred, s.err
}

type fakeSolver struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSolver) Solve(ctx context.Context, siteKey, pageURL string) (core.CaptchaToken, error) {
	f.calls.Add(1)
	if f.err != nil {
		return core.CaptchaToken{}, f.err
	}
	return core.CaptchaToken{Value: "turnstile-token", SolvedAt: time.Now()}, nil
}

type fakeAuthAPI struct {
	message   string
	token     string
	verifyErr error

	mu        sync.Mutex
	challenge ports.ChallengeRequest
	verify    ports.VerifyRequest
}

func (f *fakeAuthAPI) Challenge(ctx context.Context, req ports.ChallengeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenge = req
	return f.message, nil
}

func (f *fakeAuthAPI) Verify(ctx context.Context, req ports.VerifyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verify = req
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.token, nil
}

// blockingClaimer holds every run until release is closed
type blockingClaimer struct {
	release chan struct{}
	err     error

	active    atomic.Int32
	maxActive atomic.Int32
	runs      atomic.Int32
}

func newBlockingClaimer() *blockingClaimer {
	return &blockingClaimer{release: make(chan struct{})}
}

func (b *blockingClaimer) RunClaim(ctx context.Context, trigger core.Trigger) (core.Summary, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		peak := b.maxActive.Load()
		if n <= peak || b.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	b.runs.Add(1)

	select {
	case <-b.release:
	case <-ctx.Done():
		return core.Summary{}, ctx.Err()
	}
	if b.err != nil {
		return core.Summary{}, b.err
	}
	return core.Summary{RunID: "run"}, nil
}

var errRateLimited = errors.New(`backend returned 429: rate limited`)

// stuckPublisher blocks trigger publishing until its context ends
type stuckPublisher struct {
	triggers atomic.Int32
}

func (p *stuckPublisher) PublishTrigger(ctx context.Context, trigger core.Trigger) error {
	p.triggers.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (p *stuckPublisher) PublishOutcome(ctx context.Context, result core.SubmissionResult) error {
	return nil
}

func (p *stuckPublisher) PublishSummary(ctx context.Context, summary core.Summary) error {
	return nil
}
