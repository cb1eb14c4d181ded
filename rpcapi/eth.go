package rpcapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/silius-bundler/silius-go/params"
)

// EthAPI implements the eth_* namespace of the JSON-RPC façade: a thin
// dispatcher over the per-EntryPoint mempool and the chain client, the
// same "exported-method struct registered by namespace" shape
// chain/rpc_types.go's rpc.Error convention is itself borrowed from.
type EthAPI struct {
	chainID     *big.Int
	chain       ChainReader
	entryPoints []common.Address
	byEntry     map[common.Address]*EntryPointServices
	receipts    *receiptIndex
}

// NewEthAPI returns an EthAPI dispatching to services, one entry per
// EntryPoint this node serves.
func NewEthAPI(chainID *big.Int, chain ChainReader, services []*EntryPointServices, receipts *receiptIndex) *EthAPI {
	byEntry := make(map[common.Address]*EntryPointServices, len(services))
	entryPoints := make([]common.Address, 0, len(services))
	for _, s := range services {
		byEntry[s.EntryPoint] = s
		entryPoints = append(entryPoints, s.EntryPoint)
	}
	return &EthAPI{chainID: chainID, chain: chain, entryPoints: entryPoints, byEntry: byEntry, receipts: receipts}
}

func (api *EthAPI) serviceFor(entryPoint common.Address) (*EntryPointServices, error) {
	s, ok := api.byEntry[entryPoint]
	if !ok {
		return nil, newRPCError(params.RPCInvalidUserOp, "unsupported entry point "+entryPoint.Hex())
	}
	return s, nil
}

// SendUserOperation implements eth_sendUserOperation.
func (api *EthAPI) SendUserOperation(ctx context.Context, op RPCUserOperation, entryPoint common.Address) (common.Hash, error) {
	svc, err := api.serviceFor(entryPoint)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := svc.Pool.AddUserOperation(ctx, op.ToUserOperation())
	if err != nil {
		return common.Hash{}, toRPCError(err)
	}
	return hash, nil
}

// EstimateUserOperationGas implements eth_estimateUserOperationGas.
func (api *EthAPI) EstimateUserOperationGas(ctx context.Context, op RPCUserOperation, entryPoint common.Address) (*GasEstimate, error) {
	svc, err := api.serviceFor(entryPoint)
	if err != nil {
		return nil, err
	}
	est, err := estimateUserOperationGas(ctx, api.chain, op.ToUserOperation(), entryPoint, svc.Config.MaxVerificationGas, svc.Config.MinPriorityFeePerGas)
	if err != nil {
		return nil, toRPCError(err)
	}
	return est, nil
}

// GetUserOperationReceipt implements eth_getUserOperationReceipt, returning
// nil (JSON null) when the hash is not in the bounded inclusion index,
// which includes every UserOperation that is still pending.
func (api *EthAPI) GetUserOperationReceipt(hash common.Hash) (*UserOperationReceipt, error) {
	ev, ok := api.receipts.get(hash)
	if !ok {
		return nil, nil
	}
	return &UserOperationReceipt{
		UserOpHash:    ev.Hash,
		Sender:        ev.Sender,
		Nonce:         bigToHex(ev.Nonce),
		Success:       ev.Success,
		ActualGasCost: bigToHex(big.NewInt(0)),
		ActualGasUsed: bigToHex(big.NewInt(0)),
		TxHash:        ev.TxHash,
		BlockNumber:   bigToHex(new(big.Int).SetUint64(ev.BlockNumber)),
		BlockHash:     ev.BlockHash,
	}, nil
}

// GetUserOperationByHash implements eth_getUserOperationByHash, checking
// every EntryPoint's pending pool before falling back to the inclusion
// index.
func (api *EthAPI) GetUserOperationByHash(hash common.Hash) (*UserOperationByHashResult, error) {
	for _, entryPoint := range api.entryPoints {
		svc := api.byEntry[entryPoint]
		if entry, ok := svc.Pool.GetByHash(hash); ok {
			return &UserOperationByHashResult{
				UserOperation: FromUserOperation(entry.Op),
				EntryPoint:    entry.EntryPoint,
			}, nil
		}
	}
	if ev, ok := api.receipts.get(hash); ok {
		return &UserOperationByHashResult{
			EntryPoint:  ev.EntryPoint,
			BlockNumber: bigToHex(new(big.Int).SetUint64(ev.BlockNumber)),
			BlockHash:   ev.BlockHash,
			TxHash:      ev.TxHash,
		}, nil
	}
	return nil, nil
}

// SupportedEntryPoints implements eth_supportedEntryPoints.
func (api *EthAPI) SupportedEntryPoints() ([]common.Address, error) {
	return api.entryPoints, nil
}

// ChainId implements eth_chainId (capitalization matches go-ethereum's own
// eth_chainId handler naming so the rpc package's method-name reflection
// produces the right wire name).
func (api *EthAPI) ChainId() (hexutil.Uint64, error) {
	return hexutil.Uint64(api.chainID.Uint64()), nil
}
