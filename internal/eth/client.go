package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/dripper/core"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// GasOverrides are optional transaction fee settings
type GasOverrides struct {
	GasPrice *big.Int // legacy gas price in wei, nil lets the node suggest
	GasLimit uint64   // zero lets the node estimate
}

// Client wraps a chain node connection and, optionally, the signer used for transactions
type Client struct {
	eth    *ethclient.Client
	rpc    *rpc.Client
	signer *Signer
	gas    GasOverrides
	// timeout bounds every single node call, zero disables it
	timeout time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// Dial connects to the node at url. A positive timeout bounds every node call.
func Dial(ctx context.Context, url string, signer *Signer, gas GasOverrides, timeout time.Duration) (*Client, error) {
	var opts []rpc.ClientOption
	if timeout > 0 {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	rpcClient, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		signer:  signer,
		gas:     gas,
		timeout: timeout,
	}, nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Close closes the node connection
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the chain id, fetched once per client
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// BlockNumber returns the current block height
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	return c.eth.BlockNumber(ctx)
}

type rpcTransaction struct {
	Hash common.Hash     `json:"hash"`
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
}

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Transactions []rpcTransaction `json:"transactions"`
}

// BlockSenders returns the transactions of a block with their senders.
// The node's "from" field is used so that any transaction type can be read.
func (c *Client) BlockSenders(ctx context.Context, number uint64) ([]core.BlockTx, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	var block *rpcBlock
	if err := c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d: %w", number, ethereum.NotFound)
	}

	txs := make([]core.BlockTx, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		btx := core.BlockTx{
			Hash: tx.Hash.Hex(),
			From: tx.From.Hex(),
		}
		if tx.To != nil {
			btx.To = tx.To.Hex()
		}
		txs = append(txs, btx)
	}
	return txs, nil
}

// NativeBalance returns the native coin balance of owner
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	return c.eth.BalanceAt(ctx, owner, nil)
}

func (c *Client) erc20(token common.Address) *bind.BoundContract {
	return bind.NewBoundContract(token, parsedERC20, c.eth, c.eth, c.eth)
}

func (c *Client) call(ctx context.Context, token common.Address, method string, params ...interface{}) (interface{}, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	var out []interface{}
	if err := c.erc20(token).Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out[0], nil
}

// Decimals reads ERC-20 decimals()
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	v, err := c.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", v)
	}
	return d, nil
}

// BalanceOf reads ERC-20 balanceOf(owner)
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBig(ctx, token, "balanceOf", owner)
}

// Allowance reads ERC-20 allowance(owner, spender)
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBig(ctx, token, "allowance", owner, spender)
}

func (c *Client) callBig(ctx context.Context, token common.Address, method string, params ...interface{}) (*big.Int, error) {
	v, err := c.call(ctx, token, method, params...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type %T", method, v)
	}
	return n, nil
}

// Approve sends approve(spender, amount) from the client's signer and waits for it to be mined.
// Sending is bounded by the client timeout; the wait for the receipt only by ctx.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, errors.New("client has no signer")
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.signer.PrivateKey(), chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	sendCtx, cancel := c.bound(ctx)
	defer cancel()
	opts.Context = sendCtx
	if c.gas.GasPrice != nil {
		opts.GasPrice = new(big.Int).Set(c.gas.GasPrice)
	}
	opts.GasLimit = c.gas.GasLimit

	tx, err := c.erc20(token).Transact(opts, "approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send approve: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("failed waiting for approve %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("approve %s reverted", tx.Hash().Hex())
	}
	return tx.Hash(), nil
}
