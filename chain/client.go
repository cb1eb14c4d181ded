// Package chain adapts a JSON-RPC execution-layer endpoint into the
// operations the validator, mempool and bundle builder need: reading
// current chain state, running the custom validation tracer, and
// broadcasting bundle transactions. It is the node's only outbound network
// dependency on the execution layer, grounded on go-ethereum's ethclient
// and rpc packages the way a dialed *ethclient.Client is used elsewhere in
// this codebase.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/silius-bundler/silius-go/params"
)

// Client wraps a dialed execution-layer RPC endpoint. The raw *rpc.Client
// is kept alongside the higher-level *ethclient.Client because
// debug_traceCall and eth_sendBundle have no typed wrapper in ethclient.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client

	chainID *big.Int
	cache   *cache
}

// Dial connects to an execution-layer JSON-RPC endpoint (http(s):// or
// ws(s)://) and caches its chain ID for the lifetime of the Client.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	eth := ethclient.NewClient(rc)

	id, err := eth.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, err
	}
	log.Info("dialed execution client", "url", rawurl, "chainId", id)
	return &Client{rpc: rc, eth: eth, chainID: id, cache: newCache()}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID observed at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// HeaderByNumber returns the header at number, or the head header if number
// is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// GetCode returns the deployed code at addr as of block number (nil for
// latest), consulting the code cache first.
func (c *Client) GetCode(ctx context.Context, addr common.Address, number *big.Int) ([]byte, error) {
	if number == nil {
		if code, ok := c.cache.code(addr); ok {
			return code, nil
		}
	}
	code, err := c.eth.CodeAt(ctx, addr, number)
	if err != nil {
		return nil, err
	}
	if number == nil {
		c.cache.setCode(addr, code)
	}
	return code, nil
}

// GetBalance returns addr's balance as of block number (nil for latest).
func (c *Client) GetBalance(ctx context.Context, addr common.Address, number *big.Int) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, number)
}

// StorageAt returns the current value of addr's storage slot, used by the
// bundle builder's light re-validation to confirm a UserOperation's
// recorded storageMap still matches chain state before inclusion.
func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	val, err := c.eth.StorageAt(ctx, addr, slot, nil)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(val), nil
}

// GetTransactionCount returns addr's on-chain account nonce, used as the
// nonce of the bundler's own handleOps transaction.
func (c *Client) GetTransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return c.eth.NonceAt(ctx, addr, nil)
}

// Call executes msg against block number (nil for latest) without creating
// a transaction, returning the raw return data or a revert error.
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg, number *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, number)
}

// EstimateGas estimates the gas msg would consume if included in the next
// block.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

// SuggestGasTipCap returns the node's current suggested
// maxPriorityFeePerGas.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}

// SuggestBaseFee returns the latest head's base fee, used for the
// admission fee check and for the bundle transaction's maxFeePerGas.
func (c *Client) SuggestBaseFee(ctx context.Context) (*big.Int, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	if head.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(head.BaseFee), nil
}

// SendRawTransaction broadcasts a signed handleOps transaction.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionReceipt polls for a mined transaction's receipt, returning
// ethereum.NotFound (wrapped by ethclient) while it remains pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// WaitMined blocks, polling every pollInterval, until tx is mined or ctx is
// canceled.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendBundle submits a set of transactions for atomic inclusion in
// targetBlock via the block builder's eth_sendBundle extension. Returns
// ErrBundleRelayUnsupported if the endpoint doesn't implement it.
func (c *Client) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) error {
	rawTxs := make([]hexutilBytes, len(txs))
	for i, tx := range txs {
		b, err := tx.MarshalBinary()
		if err != nil {
			return err
		}
		rawTxs[i] = b
	}
	req := sendBundleRequest{
		Txs:         rawTxs,
		BlockNumber: hexutilUint64(targetBlock),
	}
	var result sendBundleResponse
	if err := c.rpc.CallContext(ctx, &result, "eth_sendBundle", req); err != nil {
		if isMethodNotFound(err) {
			return ErrBundleRelayUnsupported
		}
		return err
	}
	return nil
}

// BackoffRetry retries fn with the package's exponential backoff schedule
// until it succeeds, ctx is canceled, or the attempt budget is spent.
func BackoffRetry(ctx context.Context, fn func() error) error {
	delay := params.BackoffBase
	var err error
	for attempt := 0; attempt < params.BackoffMaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > params.BackoffMax {
			delay = params.BackoffMax
		}
	}
	return err
}
