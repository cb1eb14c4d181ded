package rpcapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

// Pool is the subset of *mempool.Pool the façade needs for one EntryPoint,
// kept as an interface so the RPC layer can be driven by a stub in tests
// rather than a live chain-backed pool.
type Pool interface {
	AddUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error)
	GetAll() []*userop.MempoolEntry
	GetByHash(hash common.Hash) (*userop.MempoolEntry, bool)
	ClearState() error
}

// Scheduler is the subset of *bundler.Scheduler the façade needs for
// debug_setBundlingMode / debug_sendBundleNow.
type Scheduler interface {
	SetMode(mode bundler.Mode)
	Mode() bundler.Mode
	SendBundleNow()
}

// ReputationManager is the subset of *reputation.Manager the façade needs
// for debug_setReputation / debug_dumpReputation / debug_clearState.
type ReputationManager interface {
	SetReputation(entries []userop.ReputationEntry)
	DumpReputation() []userop.ReputationEntry
	ClearState()
}

// ChainReader is the subset of *chain.Client the façade needs on its own
// behalf: validation.ChainReader covers the simulation RPCs
// eth_estimateUserOperationGas replays, plus the chain-id, fee and
// call-gas endpoints specific to the RPC surface.
type ChainReader interface {
	validation.ChainReader
	ChainID() *big.Int
	SuggestBaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// EntryPointServices bundles the per-EntryPoint collaborators the façade
// dispatches to; one entry exists per EntryPoint this node serves.
type EntryPointServices struct {
	EntryPoint common.Address
	Pool       Pool
	Scheduler  Scheduler
	Config     validation.Config
}
