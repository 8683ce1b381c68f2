package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/dripper/core"
)

// ChainReader is the read side of the chain node
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockSenders(ctx context.Context, number uint64) ([]core.BlockTx, error)
}

// TokenClient exposes the ERC-20 calls used around a claim run
type TokenClient interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	// Approve sends approve(spender, amount) and waits until it is mined
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
}

// Wallet owns the signing key of one identity
type Wallet interface {
	Address() common.Address
	SignMessage(message []byte) (string, error)
	SignTypedData(data apitypes.TypedData) (string, error)
}
