package rpcapi

import (
	"errors"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/mempool"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/validation"
)

// rpcError implements go-ethereum's rpc.Error interface (ErrorCode() int),
// the same interface chain/rpc_types.go's isMethodNotFound checks against,
// so the json-rpc codec encodes the code field itself rather than folding
// it into the message string.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func newRPCError(code int, msg string) *rpcError { return &rpcError{code: code, msg: msg} }

// toRPCError classifies an error returned by the validation/mempool/
// bundler packages into the ERC-4337 JSON-RPC code table (§7): a field or
// request-shape problem is -32602, everything else maps to the entity- or
// phase-specific code the failure represents.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*rpcError); ok {
		return err
	}

	var sanityErr *validation.SanityError
	var simErr *validation.SimulationError
	var opcodeErr *validation.OpcodeViolationError
	var storageErr *validation.StorageViolationError
	var callTargetErr *validation.CallTargetError
	var codeHashErr *validation.CodeHashChangedError
	var expiredErr *validation.ExpiredError
	var prefundErr *validation.InsufficientPrefundError
	var reputationErr *validation.ReputationError
	var replacementErr *mempool.ReplacementError
	var inFlightErr *mempool.InFlightError
	var unknownHashErr *mempool.UnknownHashError
	var entityCapErr *mempool.EntityCapError
	var emptyBundleErr *bundler.EmptyBundleError

	switch {
	case errors.As(err, &sanityErr):
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	case errors.As(err, &simErr):
		if simErr.Reason == "signature check failed" {
			return newRPCError(params.RPCInvalidUserOpSignature, err.Error())
		}
		return newRPCError(params.RPCRejectedByEntryPoint, err.Error())
	case errors.As(err, &opcodeErr), errors.As(err, &storageErr), errors.As(err, &callTargetErr), errors.As(err, &codeHashErr):
		return newRPCError(params.RPCBannedOpcodeOrStorage, err.Error())
	case errors.As(err, &expiredErr):
		return newRPCError(params.RPCExpiredOrNotYetValid, err.Error())
	case errors.As(err, &prefundErr):
		return newRPCError(params.RPCRejectedByEntryPoint, err.Error())
	case errors.As(err, &reputationErr):
		return newRPCError(params.RPCPaymasterThrottledBan, err.Error())
	case errors.As(err, &entityCapErr):
		return newRPCError(params.RPCPaymasterThrottledBan, err.Error())
	case errors.As(err, &replacementErr):
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	case errors.As(err, &inFlightErr):
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	case errors.As(err, &unknownHashErr):
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	case errors.As(err, &emptyBundleErr):
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	default:
		return newRPCError(params.RPCInvalidUserOp, err.Error())
	}
}
