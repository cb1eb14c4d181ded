package chain

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrBundleRelayUnsupported is returned by SendBundle when the dialed
// endpoint has no eth_sendBundle extension.
var ErrBundleRelayUnsupported = errors.New("chain: endpoint does not support eth_sendBundle")

// SimulationRevertError reports that simulateValidation reverted for a
// reason other than the expected ValidationResult success-path revert,
// e.g. AA2x/AA3x account or paymaster validation failures.
type SimulationRevertError struct {
	Reason string
}

func (e *SimulationRevertError) Error() string {
	return "simulateValidation reverted: " + e.Reason
}

// FailedOp is the decoded form of the EntryPoint's
// FailedOp(uint256 opIndex, string reason) revert error, raised when one
// UserOperation in a handleOps batch fails validation or execution.
type FailedOp struct {
	OpIndex int64
	Reason  string
}

func (e *FailedOp) Error() string {
	return "FailedOp(" + e.Reason + ")"
}

var failedOpErrorABI, failedOpWithRevertErrorABI abi.Error

func init() {
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	stringTy, _ := abi.NewType("string", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)

	failedOpErrorABI = abi.NewError("FailedOp", abi.Arguments{
		{Name: "opIndex", Type: uint256Ty},
		{Name: "reason", Type: stringTy},
	})
	failedOpWithRevertErrorABI = abi.NewError("FailedOpWithRevert", abi.Arguments{
		{Name: "opIndex", Type: uint256Ty},
		{Name: "reason", Type: stringTy},
		{Name: "inner", Type: bytesTy},
	})
}

// DecodeRevert attempts to interpret revert data returned by a failed
// simulateValidation or handleOps call as one of the EntryPoint's known
// custom errors. Returns (nil, false) for revert data it doesn't
// recognize, leaving the caller to fall back to the raw bytes.
func DecodeRevert(data []byte) (*FailedOp, bool) {
	if len(data) < 4 {
		return nil, false
	}
	switch {
	case bytes.Equal(data[:4], failedOpErrorABI.ID[:4]):
		vals, err := failedOpErrorABI.Inputs.Unpack(data[4:])
		if err != nil || len(vals) < 2 {
			return nil, false
		}
		return unpackFailedOp(vals)
	case bytes.Equal(data[:4], failedOpWithRevertErrorABI.ID[:4]):
		vals, err := failedOpWithRevertErrorABI.Inputs.Unpack(data[4:])
		if err != nil || len(vals) < 2 {
			return nil, false
		}
		return unpackFailedOp(vals)
	default:
		return nil, false
	}
}

func unpackFailedOp(vals []interface{}) (*FailedOp, bool) {
	idx, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}
	reason, ok := vals[1].(string)
	if !ok {
		return nil, false
	}
	return &FailedOp{OpIndex: idx.Int64(), Reason: reason}, true
}
