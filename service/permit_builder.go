package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/eth"
	"github.com/layer-3/dripper/ports"
)

const (
	permitDomainName    = "B402"
	permitDomainVersion = "1"
	permitPrimaryType   = "TransferWithAuthorization"

	validAfterSkew   = 20 * time.Second
	validityWindow   = 1800 * time.Second
	maxNonceAttempts = 5
)

var transferWithAuthorizationType = []apitypes.Type{
	{Name: "token", Type: "address"},
	{Name: "from", Type: "address"},
	{Name: "to", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "validAfter", Type: "uint256"},
	{Name: "validBefore", Type: "uint256"},
	{Name: "nonce", Type: "bytes32"},
}

// PermitTypedData returns the typed data a permit signature covers
func PermitTypedData(chainID *big.Int, relayer common.Address, auth core.Authorization) apitypes.TypedData {
	domain := eth.EIP712Domain{
		Name:              permitDomainName,
		Version:           permitDomainVersion,
		ChainID:           chainID,
		VerifyingContract: relayer,
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":    eth.DomainType,
			permitPrimaryType: transferWithAuthorizationType,
		},
		PrimaryType: permitPrimaryType,
		Domain:      domain.TypedDataDomain(),
		Message: apitypes.TypedDataMessage{
			"token":       auth.Token,
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  strconv.FormatInt(auth.ValidAfter, 10),
			"validBefore": strconv.FormatInt(auth.ValidBefore, 10),
			"nonce":       auth.Nonce,
		},
	}
}

// PermitBuilder signs transfer authorizations for the claim pipeline
type PermitBuilder struct {
	wallet    ports.Wallet
	chain     ports.ChainReader
	store     ports.Store
	token     common.Address
	recipient common.Address

	now   func() time.Time
	nonce func() ([32]byte, error)
}

// NewPermitBuilder creates a permit builder. The store is optional and only
// backs the nonce registry.
func NewPermitBuilder(
	wallet ports.Wallet,
	chain ports.ChainReader,
	store ports.Store,
	token common.Address,
	recipient common.Address,
) *PermitBuilder {
	return &PermitBuilder{
		wallet:    wallet,
		chain:     chain,
		store:     store,
		token:     token,
		recipient: recipient,
		now:       time.Now,
		nonce:     randomNonce,
	}
}

func randomNonce() ([32]byte, error) {
	var n [32]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// Build signs a single permit for amount under the relayer's domain
func (b *PermitBuilder) Build(ctx context.Context, amount string, relayer common.Address) (core.Permit, error) {
	chainID, err := b.chain.ChainID(ctx)
	if err != nil {
		return core.Permit{}, fmt.Errorf("failed to read chain id: %w", err)
	}
	return b.build(ctx, chainID, amount, relayer, nil)
}

// BuildBatch builds exactly n permits for the requirement, or none at all
func (b *PermitBuilder) BuildBatch(ctx context.Context, n int, req core.PaymentRequirement) ([]core.Permit, error) {
	if !common.IsHexAddress(req.RelayerContract) {
		return nil, fmt.Errorf("invalid relayer contract %q", req.RelayerContract)
	}
	relayer := common.HexToAddress(req.RelayerContract)

	chainID, err := b.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	seen := make(map[string]struct{}, n)
	permits := make([]core.Permit, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := b.build(ctx, chainID, req.Amount, relayer, seen)
		if err != nil {
			return nil, fmt.Errorf("permit %d/%d: %w", i+1, n, err)
		}
		permits = append(permits, p)
	}
	return permits, nil
}

func (b *PermitBuilder) build(ctx context.Context, chainID *big.Int, amount string, relayer common.Address, seen map[string]struct{}) (core.Permit, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return core.Permit{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, amount)
	}

	nonce, err := b.reserveNonce(ctx, seen)
	if err != nil {
		return core.Permit{}, err
	}

	now := b.now().Unix()
	auth := core.Authorization{
		Token:       b.token.Hex(),
		From:        b.wallet.Address().Hex(),
		To:          b.recipient.Hex(),
		Value:       value.String(),
		ValidAfter:  now - int64(validAfterSkew/time.Second),
		ValidBefore: now + int64(validityWindow/time.Second),
		Nonce:       nonce,
	}

	sig, err := b.wallet.SignTypedData(PermitTypedData(chainID, relayer, auth))
	if err != nil {
		return core.Permit{}, fmt.Errorf("failed to sign permit: %w", err)
	}
	return core.Permit{Authorization: auth, Signature: sig}, nil
}

// reserveNonce draws a nonce that was never handed out before, checking the
// batch set and the store registry
func (b *PermitBuilder) reserveNonce(ctx context.Context, seen map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxNonceAttempts; attempt++ {
		raw, err := b.nonce()
		if err != nil {
			return "", err
		}
		nonce := hexutil.Encode(raw[:])

		if _, dup := seen[nonce]; dup {
			continue
		}
		if b.store != nil {
			fresh, err := b.store.SetNX(ctx, "nonce:"+nonce, "1", validityWindow+validAfterSkew)
			if err != nil {
				return "", fmt.Errorf("failed to register nonce: %w", err)
			}
			if !fresh {
				continue
			}
		}
		if seen != nil {
			seen[nonce] = struct{}{}
		}
		return nonce, nil
	}
	return "", core.ErrNonceCollision
}
