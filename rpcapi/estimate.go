package rpcapi

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

// alwaysOkReputation answers every reputation question with the most
// permissive result; eth_estimateUserOperationGas simulates against the
// EntryPoint but never consults or mutates the live reputation state, so a
// throttled or newly-seen entity still gets a gas estimate.
type alwaysOkReputation struct{}

func (alwaysOkReputation) Status(common.Address) userop.ReputationStatus { return userop.ReputationOk }
func (alwaysOkReputation) EntityCount(common.Address) int               { return 0 }

// fillEstimateDefaults returns a copy of op with any unset gas/fee field
// replaced by a generous placeholder, so the simulation pipeline (which
// enforces the same floors admission does) has something to validate
// against. Only the returned copy's estimated fields are used for
// simulation; the caller's original values are never mutated and the
// floors this fills in are not what's returned to the client.
func fillEstimateDefaults(op *userop.UserOperation, maxVerificationGas, minPriorityFeePerGas, baseFee *big.Int) *userop.UserOperation {
	filled := *op

	if filled.PreVerificationGas == nil || filled.PreVerificationGas.Sign() == 0 {
		filled.PreVerificationGas = new(big.Int).SetUint64(validation.EstimatePreVerificationGas(op))
	}
	if filled.VerificationGasLimit == nil || filled.VerificationGasLimit.Sign() == 0 {
		filled.VerificationGasLimit = new(big.Int).Set(maxVerificationGas)
	}
	if filled.CallGasLimit == nil || filled.CallGasLimit.Sign() == 0 {
		filled.CallGasLimit = big.NewInt(3_000_000)
	}
	if filled.MaxPriorityFeePerGas == nil || filled.MaxPriorityFeePerGas.Sign() == 0 {
		filled.MaxPriorityFeePerGas = new(big.Int).Set(minPriorityFeePerGas)
	}
	if filled.MaxFeePerGas == nil || filled.MaxFeePerGas.Sign() == 0 {
		filled.MaxFeePerGas = new(big.Int).Add(baseFee, filled.MaxPriorityFeePerGas)
	}
	return &filled
}

// estimateUserOperationGas replays the validation pipeline against a
// version of op with placeholder gas/fee fields filled in, tolerating a
// zeroed (or any) signature, and derives the three gas fields a client
// needs to fill in before resubmitting for real admission.
func estimateUserOperationGas(ctx context.Context, cr ChainReader, op *userop.UserOperation, entryPoint common.Address, maxVerificationGas, minPriorityFeePerGas *big.Int) (*GasEstimate, error) {
	baseFee, err := cr.SuggestBaseFee(ctx)
	if err != nil {
		return nil, err
	}

	cfg := validation.Config{
		EntryPoint:           entryPoint,
		MaxVerificationGas:   maxVerificationGas,
		MinPriorityFeePerGas: minPriorityFeePerGas,
		MinStake:             big.NewInt(0),
		AllowBelowBaseFee:    true,
		PermissiveSigFailed:  true,
	}

	filled := fillEstimateDefaults(op, maxVerificationGas, minPriorityFeePerGas, baseFee)
	outcome, err := validation.Validate(ctx, filled, cr, alwaysOkReputation{}, cfg, baseFee, time.Now())
	if err != nil {
		return nil, err
	}

	callGasLimit := big.NewInt(21_000)
	if len(op.CallData) > 0 {
		if gas, err := cr.EstimateGas(ctx, ethereum.CallMsg{From: entryPoint, To: &op.Sender, Data: op.CallData}); err == nil {
			callGasLimit = new(big.Int).SetUint64(gas)
		}
	}

	return &GasEstimate{
		PreVerificationGas:   bigToHex(new(big.Int).SetUint64(validation.EstimatePreVerificationGas(op))),
		VerificationGasLimit: bigToHex(outcome.PreOpGas),
		CallGasLimit:         bigToHex(callGasLimit),
	}, nil
}
