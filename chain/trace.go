package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
)

// validationTracerName is the debug_traceCall "tracer" argument selecting
// the node's custom per-entity opcode/storage collector. The node is
// expected to load this JS/native tracer out of band (geth's
// --js-tracer-dir or an equivalent), matching the pattern of the
// bundler-collector tracer used across the ERC-4337 implementer ecosystem.
const validationTracerName = "bundlerCollectorTracer"

// traceCallRequest is the eth_call-shaped message passed alongside the
// tracer name and state overrides to debug_traceCall.
type traceCallRequest struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
	Gas  hexutil.Uint64 `json:"gas,omitempty"`
}

type traceCallOpts struct {
	Tracer string `json:"tracer"`
}

// traceCallResponse is the custom tracer's output: one Frame per entity
// address observed during simulateValidation, keyed by hex address,
// alongside the ValidationResult the EntryPoint reverted with. Folding the
// decoded revert into the same tracer response avoids a second ABI-level
// round trip through the EntryPoint's nested ReturnInfo/StakeInfo tuples.
type traceCallResponse struct {
	Frames     map[string]rawFrame `json:"frames"`
	Validation rawValidationResult `json:"validation"`
}

type rawValidationResult struct {
	SigFailed        bool          `json:"sigFailed"`
	PreOpGas         string        `json:"preOpGas"`
	Prefund          string        `json:"prefund"`
	ValidAfter       uint64        `json:"validAfter"`
	ValidUntil       uint64        `json:"validUntil"`
	PaymasterContext hexutil.Bytes `json:"paymasterContext"`
	SenderInfo       rawStakeInfo  `json:"senderInfo"`
	FactoryInfo      rawStakeInfo  `json:"factoryInfo"`
	PaymasterInfo    rawStakeInfo  `json:"paymasterInfo"`
	Aggregator       *string       `json:"aggregator,omitempty"`
	Reverted         bool          `json:"reverted"`
	RevertReason     string        `json:"revertReason,omitempty"`
}

type rawStakeInfo struct {
	Stake           string `json:"stake"`
	UnstakeDelaySec uint64 `json:"unstakeDelaySec"`
}

// ValidationResult is the decoded form of the EntryPoint's
// simulateValidation success-path revert: ReturnInfo plus one StakeInfo per
// referenced entity.
type ValidationResult struct {
	SigFailed        bool
	PreOpGas         *big.Int
	Prefund          *big.Int
	ValidAfter       uint64
	ValidUntil       uint64
	PaymasterContext []byte
	SenderInfo       StakeInfo
	FactoryInfo      StakeInfo
	PaymasterInfo    StakeInfo
	Aggregator       *common.Address
}

// StakeInfo mirrors the EntryPoint's StakeInfo{stake,unstakeDelaySec}.
type StakeInfo struct {
	Stake           *big.Int
	UnstakeDelaySec uint64
}

func decodeValidationResult(raw rawValidationResult) *ValidationResult {
	vr := &ValidationResult{
		SigFailed:        raw.SigFailed,
		PreOpGas:         bigFromDecimal(raw.PreOpGas),
		Prefund:          bigFromDecimal(raw.Prefund),
		ValidAfter:       raw.ValidAfter,
		ValidUntil:       raw.ValidUntil,
		PaymasterContext: raw.PaymasterContext,
		SenderInfo:       raw.SenderInfo.decode(),
		FactoryInfo:      raw.FactoryInfo.decode(),
		PaymasterInfo:    raw.PaymasterInfo.decode(),
	}
	if raw.Aggregator != nil {
		addr := common.HexToAddress(*raw.Aggregator)
		vr.Aggregator = &addr
	}
	return vr
}

func (s rawStakeInfo) decode() StakeInfo {
	return StakeInfo{Stake: bigFromDecimal(s.Stake), UnstakeDelaySec: s.UnstakeDelaySec}
}

func bigFromDecimal(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return new(big.Int)
	}
	return v
}

type rawFrame struct {
	Events     []rawEvent        `json:"events"`
	CodeHashes map[string]string `json:"codeHashes"`
}

type rawEvent struct {
	Depth      int     `json:"depth"`
	Op         string  `json:"op"`
	Address    *string `json:"address,omitempty"`
	Slot       *string `json:"slot,omitempty"`
	Value      *string `json:"value,omitempty"`
	Write      bool    `json:"write,omitempty"`
	CallTarget *string `json:"callTarget,omitempty"`
	Selector   *string `json:"selector,omitempty"`
	Created    *string `json:"created,omitempty"`
}

// TraceValidation runs debug_traceCall against entryPoint.simulateValidation(op)
// and returns one tracer.Frame per entity (sender, factory, paymaster)
// observed during the call, ready for tracer.CheckRules, plus the decoded
// ValidationResult the EntryPoint reverted with. A deterministic validation
// revert (AA2x/AA3x, FailedOp) is reported via raw.Validation.Reverted
// rather than as a transport error, so the caller can distinguish it from a
// transient RPC failure.
func (c *Client) TraceValidation(ctx context.Context, entryPoint common.Address, simulateValidationCalldata []byte) (map[common.Address]tracer.Frame, *ValidationResult, error) {
	defer MetricsTraceValidationCost(time.Now())

	req := traceCallRequest{
		To:   entryPoint,
		Data: simulateValidationCalldata,
	}
	opts := traceCallOpts{Tracer: validationTracerName}

	var raw traceCallResponse
	if err := c.rpc.CallContext(ctx, &raw, "debug_traceCall", &req, "latest", &opts); err != nil {
		rpcErrorMeter.Mark(1)
		return nil, nil, err
	}
	if raw.Validation.Reverted {
		return nil, nil, &SimulationRevertError{Reason: raw.Validation.RevertReason}
	}
	frames, err := decodeFrames(raw)
	if err != nil {
		return nil, nil, err
	}
	return frames, decodeValidationResult(raw.Validation), nil
}

func decodeFrames(raw traceCallResponse) (map[common.Address]tracer.Frame, error) {
	frames := make(map[common.Address]tracer.Frame, len(raw.Frames))
	for addrHex, rf := range raw.Frames {
		addr := common.HexToAddress(addrHex)
		frame := tracer.Frame{
			Entity:     addr,
			CodeHashes: make(map[common.Address]common.Hash, len(rf.CodeHashes)),
		}
		for codeAddrHex, hashHex := range rf.CodeHashes {
			frame.CodeHashes[common.HexToAddress(codeAddrHex)] = common.HexToHash(hashHex)
		}
		for _, ev := range rf.Events {
			frame.Events = append(frame.Events, decodeEvent(ev))
		}
		frames[addr] = frame
	}
	return frames, nil
}

func decodeEvent(ev rawEvent) tracer.Event {
	out := tracer.Event{Depth: ev.Depth, Opcode: tracer.Opcode(ev.Op)}
	if ev.Address != nil && ev.Slot != nil {
		access := &tracer.StorageAccess{
			Address: common.HexToAddress(*ev.Address),
			Slot:    common.HexToHash(*ev.Slot),
			Write:   ev.Write,
		}
		if ev.Value != nil {
			access.Value = common.HexToHash(*ev.Value)
		}
		out.Storage = access
	}
	if ev.CallTarget != nil {
		target := common.HexToAddress(*ev.CallTarget)
		out.CallTarget = &target
	}
	if ev.Selector != nil {
		sel := common.FromHex(*ev.Selector)
		if len(sel) >= 4 {
			copy(out.Selector[:], sel[:4])
		}
	}
	if ev.Created != nil {
		created := common.HexToAddress(*ev.Created)
		out.Created = &created
	}
	return out
}

// EncodeSimulateValidation ABI-encodes a call to
// EntryPoint.simulateValidation((address,uint256,bytes,bytes,uint256,uint256,uint256,uint256,uint256,bytes,bytes))
// for the given UserOperation, ready to pass as calldata to TraceValidation.
func EncodeSimulateValidation(op *userop.UserOperation) ([]byte, error) {
	parsed, err := entryPointABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("simulateValidation", packUserOpTuple(op))
}

type userOpTuple struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

func packUserOpTuple(op *userop.UserOperation) userOpTuple {
	return userOpTuple{
		Sender:               op.Sender,
		Nonce:                normalizeBig(op.Nonce),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         normalizeBig(op.CallGasLimit),
		VerificationGasLimit: normalizeBig(op.VerificationGasLimit),
		PreVerificationGas:   normalizeBig(op.PreVerificationGas),
		MaxFeePerGas:         normalizeBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: normalizeBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	}
}

func normalizeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// entryPointABI parses the subset of the EntryPoint ABI this package needs
// to encode calldata for debug_traceCall, kept small and local rather than
// depending on an abigen-generated binding.
func entryPointABI() (abi.ABI, error) {
	const entryPointJSON = `[{
		"name": "simulateValidation",
		"type": "function",
		"inputs": [{
			"name": "userOp",
			"type": "tuple",
			"components": [
				{"name": "sender", "type": "address"},
				{"name": "nonce", "type": "uint256"},
				{"name": "initCode", "type": "bytes"},
				{"name": "callData", "type": "bytes"},
				{"name": "callGasLimit", "type": "uint256"},
				{"name": "verificationGasLimit", "type": "uint256"},
				{"name": "preVerificationGas", "type": "uint256"},
				{"name": "maxFeePerGas", "type": "uint256"},
				{"name": "maxPriorityFeePerGas", "type": "uint256"},
				{"name": "paymasterAndData", "type": "bytes"},
				{"name": "signature", "type": "bytes"}
			]
		}]
	}]`
	return abi.JSON(strings.NewReader(entryPointJSON))
}
