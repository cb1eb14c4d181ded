package validation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// sanityCheck runs every no-RPC check against op, in the order a caller
// would want reported: the first violated field is returned. baseFee is
// the current block's base fee, used for the fee-adequacy check.
func sanityCheck(op *userop.UserOperation, cfg Config, baseFee *big.Int) error {
	if op.Sender == (common.Address{}) {
		return &SanityError{Field: "sender", Reason: "must be non-zero"}
	}
	if op.CallGasLimit == nil || op.CallGasLimit.Uint64() < params.CallGasMin {
		return &SanityError{Field: "callGasLimit", Reason: "below CALL_GAS_MIN"}
	}

	floor := preVerificationGasFloor(op.InitCode, op.CallData, op.PaymasterAndData, op.Signature)
	if op.PreVerificationGas == nil || op.PreVerificationGas.Uint64() < floor {
		return &SanityError{Field: "preVerificationGas", Reason: "below linear estimate"}
	}

	if op.VerificationGasLimit == nil || op.VerificationGasLimit.Cmp(cfg.MaxVerificationGas) > 0 {
		return &SanityError{Field: "verificationGasLimit", Reason: "exceeds maxVerificationGas"}
	}

	if op.MaxPriorityFeePerGas == nil || op.MaxFeePerGas == nil {
		return &SanityError{Field: "maxFeePerGas", Reason: "must be set"}
	}
	if op.MaxPriorityFeePerGas.Cmp(op.MaxFeePerGas) > 0 {
		return &SanityError{Field: "maxPriorityFeePerGas", Reason: "exceeds maxFeePerGas"}
	}
	if op.MaxPriorityFeePerGas.Cmp(cfg.MinPriorityFeePerGas) < 0 {
		return &SanityError{Field: "maxPriorityFeePerGas", Reason: "below minPriorityFeePerGas"}
	}
	if !cfg.AllowBelowBaseFee && baseFee != nil && op.MaxFeePerGas.Cmp(baseFee) < 0 {
		return &SanityError{Field: "maxFeePerGas", Reason: "below current baseFeePerGas"}
	}

	if n := len(op.PaymasterAndData); n != 0 && n < params.MinPaymasterAndDataLen {
		return &SanityError{Field: "paymasterAndData", Reason: "shorter than an address"}
	}
	if n := len(op.InitCode); n != 0 && n < params.MinInitCodeLen {
		return &SanityError{Field: "initCode", Reason: "shorter than an address"}
	}

	return nil
}
