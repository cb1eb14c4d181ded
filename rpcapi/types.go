package rpcapi

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/silius-bundler/silius-go/userop"
)

// RPCUserOperation is the wire representation of a UserOperation: every
// numeric field travels as a hex string and every byte field as 0x-prefixed
// hex, the same convention chain/rpc_types.go uses for its own request/
// response structs.
type RPCUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// bigOrZero unwraps a possibly-nil *hexutil.Big into a *big.Int, treating a
// missing field as zero rather than nil so downstream arithmetic never
// dereferences a nil pointer.
func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return (*big.Int)(v)
}

// ToUserOperation converts the wire struct to the core type the validation
// and mempool packages operate on.
func (r *RPCUserOperation) ToUserOperation() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               r.Sender,
		Nonce:                bigOrZero(r.Nonce),
		InitCode:             []byte(r.InitCode),
		CallData:             []byte(r.CallData),
		CallGasLimit:         bigOrZero(r.CallGasLimit),
		VerificationGasLimit: bigOrZero(r.VerificationGasLimit),
		PreVerificationGas:   bigOrZero(r.PreVerificationGas),
		MaxFeePerGas:         bigOrZero(r.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOrZero(r.MaxPriorityFeePerGas),
		PaymasterAndData:     []byte(r.PaymasterAndData),
		Signature:            []byte(r.Signature),
	}
}

// FromUserOperation builds the wire struct from a core UserOperation.
func FromUserOperation(op *userop.UserOperation) RPCUserOperation {
	return RPCUserOperation{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(op.Nonce),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         (*hexutil.Big)(op.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(op.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(op.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(op.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(op.MaxPriorityFeePerGas),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	}
}

// bigToHex wraps a *big.Int for JSON marshaling, treating nil as zero.
func bigToHex(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(big.NewInt(0))
	}
	return (*hexutil.Big)(v)
}

// GasEstimate is the result of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// UserOperationReceipt is the result of eth_getUserOperationReceipt.
type UserOperationReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Success       bool           `json:"success"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	TxHash        common.Hash    `json:"transactionHash"`
	BlockNumber   *hexutil.Big   `json:"blockNumber"`
	BlockHash     common.Hash    `json:"blockHash"`
}

// UserOperationByHashResult is the result of eth_getUserOperationByHash.
type UserOperationByHashResult struct {
	UserOperation RPCUserOperation `json:"userOperation"`
	EntryPoint    common.Address   `json:"entryPoint"`
	BlockNumber   *hexutil.Big     `json:"blockNumber"`
	BlockHash     common.Hash      `json:"blockHash"`
	TxHash        common.Hash      `json:"transactionHash"`
}

// RPCReputationEntry is the wire representation of a ReputationEntry for
// debug_dumpReputation / debug_setReputation.
type RPCReputationEntry struct {
	Address      common.Address `json:"address"`
	OpsSeen      hexutil.Uint64 `json:"opsSeen"`
	OpsIncluded  hexutil.Uint64 `json:"opsIncluded"`
	Stake        *hexutil.Big   `json:"stake"`
	UnstakeDelay hexutil.Uint64 `json:"unstakeDelaySec"`
}

func fromReputationEntry(e userop.ReputationEntry) RPCReputationEntry {
	return RPCReputationEntry{
		Address:      e.Address,
		OpsSeen:      hexutil.Uint64(e.OpsSeen),
		OpsIncluded:  hexutil.Uint64(e.OpsIncluded),
		Stake:        (*hexutil.Big)(e.Stake),
		UnstakeDelay: hexutil.Uint64(e.UnstakeDelay / time.Second),
	}
}

func toReputationEntry(e RPCReputationEntry) userop.ReputationEntry {
	return userop.ReputationEntry{
		Address:      e.Address,
		OpsSeen:      uint64(e.OpsSeen),
		OpsIncluded:  uint64(e.OpsIncluded),
		Stake:        bigOrZero(e.Stake),
		UnstakeDelay: time.Duration(e.UnstakeDelay) * time.Second,
	}
}

// RPCMempoolEntry is the wire representation of a MempoolEntry for
// debug_dumpMempool.
type RPCMempoolEntry struct {
	Hash       common.Hash      `json:"hash"`
	EntryPoint common.Address   `json:"entryPoint"`
	Op         RPCUserOperation `json:"userOperation"`
}

func fromMempoolEntry(e *userop.MempoolEntry) RPCMempoolEntry {
	return RPCMempoolEntry{
		Hash:       e.Hash,
		EntryPoint: e.EntryPoint,
		Op:         FromUserOperation(e.Op),
	}
}
