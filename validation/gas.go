package validation

import (
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// byteCost tallies zero and non-zero bytes across a UserOperation's
// variable-length fields, the way a rollup L1-fee calculation tallies
// calldata bytes, so preVerificationGas can be estimated the same linear
// way handleOps itself will charge for calldata.
type byteCost struct {
	zero, nonZero uint64
}

func countBytes(fields ...[]byte) byteCost {
	var c byteCost
	for _, f := range fields {
		for _, b := range f {
			if b == 0 {
				c.zero++
			} else {
				c.nonZero++
			}
		}
	}
	return c
}

// preVerificationGasFloor returns the minimum preVerificationGas a
// UserOperation with the given variable-length fields must declare: a
// fixed overhead (PreVerificationGasFixed) plus a per-operation overhead
// (PreVerificationGasPerUo) plus the calldata cost of those fields'
// zero and non-zero bytes.
func preVerificationGasFloor(initCode, callData, paymasterAndData, signature []byte) uint64 {
	cost := countBytes(initCode, callData, paymasterAndData, signature)
	return params.PreVerificationGasFixed +
		params.PreVerificationGasPerUo +
		cost.zero*params.PreVerificationGasPerZero +
		cost.nonZero*params.PreVerificationGasPerByte
}

// EstimatePreVerificationGas exposes preVerificationGasFloor for callers
// outside the package (the JSON-RPC façade's eth_estimateUserOperationGas),
// which need the same floor the sanity check itself enforces rather than a
// second, divergent estimate.
func EstimatePreVerificationGas(op *userop.UserOperation) uint64 {
	return preVerificationGasFloor(op.InitCode, op.CallData, op.PaymasterAndData, op.Signature)
}
