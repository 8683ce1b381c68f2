package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/dripper/adapters/store"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermitBuilderBuild(t *testing.T) {
	wallet := newTestWallet(t)
	b := NewPermitBuilder(wallet, &fakeChain{chainID: big.NewInt(56)}, nil, testToken, testRecipient)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	p, err := b.Build(context.Background(), "1000000000000000000", testRelayer)
	require.NoError(t, err)

	auth := p.Authorization
	assert.Equal(t, testToken.Hex(), auth.Token)
	assert.Equal(t, wallet.Address().Hex(), auth.From)
	assert.Equal(t, testRecipient.Hex(), auth.To)
	assert.Equal(t, "1000000000000000000", auth.Value)
	assert.Equal(t, now.Unix()-20, auth.ValidAfter)
	assert.Equal(t, now.Unix()+1800, auth.ValidBefore)
	assert.Len(t, auth.Nonce, 66)

	signer, err := eth.RecoverTypedData(PermitTypedData(big.NewInt(56), testRelayer, auth), p.Signature)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), signer)

	// bound to the chain id and the relayer
	other, err := eth.RecoverTypedData(PermitTypedData(big.NewInt(1), testRelayer, auth), p.Signature)
	require.NoError(t, err)
	assert.NotEqual(t, wallet.Address(), other)

	other, err = eth.RecoverTypedData(PermitTypedData(big.NewInt(56), common.HexToAddress("0x01"), auth), p.Signature)
	require.NoError(t, err)
	assert.NotEqual(t, wallet.Address(), other)
}

func TestPermitBuilderInvalidAmount(t *testing.T) {
	b := NewPermitBuilder(newTestWallet(t), &fakeChain{}, nil, testToken, testRecipient)

	for _, amount := range []string{"", "abc", "-1", "1.5"} {
		_, err := b.Build(context.Background(), amount, testRelayer)
		assert.ErrorIs(t, err, core.ErrInvalidAmount, amount)
	}
}

func TestPermitBuilderBatchExactCount(t *testing.T) {
	b := NewPermitBuilder(newTestWallet(t), &fakeChain{}, store.NewMemoryStore(), testToken, testRecipient)
	req := core.PaymentRequirement{Amount: "100", Network: "bsc", RelayerContract: testRelayer.Hex()}

	for _, n := range []int{0, 1, 7} {
		permits, err := b.BuildBatch(context.Background(), n, req)
		require.NoError(t, err)
		assert.Len(t, permits, n)
	}
}

func TestPermitBuilderBatchFailsAsWhole(t *testing.T) {
	b := NewPermitBuilder(newTestWallet(t), &fakeChain{}, nil, testToken, testRecipient)

	permits, err := b.BuildBatch(context.Background(), 3, core.PaymentRequirement{Amount: "x", RelayerContract: testRelayer.Hex()})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Nil(t, permits)

	_, err = b.BuildBatch(context.Background(), 3, core.PaymentRequirement{Amount: "1", RelayerContract: "0xRELAY"})
	assert.Error(t, err)
}

func TestPermitNoncesAreUnique(t *testing.T) {
	b := NewPermitBuilder(newTestWallet(t), &fakeChain{}, store.NewMemoryStore(), testToken, testRecipient)
	req := core.PaymentRequirement{Amount: "1", RelayerContract: testRelayer.Hex()}

	permits, err := b.BuildBatch(context.Background(), 1000, req)
	require.NoError(t, err)

	seen := make(map[string]struct{}, len(permits))
	for _, p := range permits {
		_, dup := seen[p.Authorization.Nonce]
		require.False(t, dup, "nonce %s reused", p.Authorization.Nonce)
		seen[p.Authorization.Nonce] = struct{}{}
	}
}

func TestPermitBuilderRegeneratesCollidingNonce(t *testing.T) {
	b := NewPermitBuilder(newTestWallet(t), &fakeChain{}, store.NewMemoryStore(), testToken, testRecipient)

	// the source repeats each value twice
	var draws int
	b.nonce = func() ([32]byte, error) {
		var n [32]byte
		n[0] = byte(draws / 2)
		draws++
		return n, nil
	}

	permits, err := b.BuildBatch(context.Background(), 3, core.PaymentRequirement{Amount: "1", RelayerContract: testRelayer.Hex()})
	require.NoError(t, err)
	assert.NotEqual(t, permits[0].Authorization.Nonce, permits[1].Authorization.Nonce)
	assert.NotEqual(t, permits[1].Authorization.Nonce, permits[2].Authorization.Nonce)
	assert.Equal(t, 5, draws)

	// a stuck source gives up
	b.nonce = func() ([32]byte, error) { return [32]byte{}, nil }
	_, err = b.BuildBatch(context.Background(), 1, core.PaymentRequirement{Amount: "1", RelayerContract: testRelayer.Hex()})
	assert.ErrorIs(t, err, core.ErrNonceCollision)
}
