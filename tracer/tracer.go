// Package tracer models the output of the custom debug_traceCall tracer
// the chain oracle invokes during simulateValidation: an ordered stream of
// opcode events per call frame, annotated with storage accesses, created
// addresses, and accessed code. The tracer itself is an external black
// box — this package only defines the shape of its output and the pure
// ERC-7562 rule checks run over it.
package tracer

import "github.com/ethereum/go-ethereum/common"

// Opcode is a subset of EVM mnemonics relevant to ERC-7562 rule checking.
// The tracer is free to report others; only these are inspected.
type Opcode string

const (
	GASPRICE     Opcode = "GASPRICE"
	GASLIMIT     Opcode = "GASLIMIT"
	PREVRANDAO   Opcode = "PREVRANDAO" // DIFFICULTY pre-Merge
	TIMESTAMP    Opcode = "TIMESTAMP"
	BASEFEE      Opcode = "BASEFEE"
	BLOCKHASH    Opcode = "BLOCKHASH"
	NUMBER       Opcode = "NUMBER"
	SELFBALANCE  Opcode = "SELFBALANCE"
	BALANCE      Opcode = "BALANCE"
	ORIGIN       Opcode = "ORIGIN"
	GAS          Opcode = "GAS"
	CREATE       Opcode = "CREATE"
	CREATE2      Opcode = "CREATE2"
	COINBASE     Opcode = "COINBASE"
	SELFDESTRUCT Opcode = "SELFDESTRUCT"
	CALL         Opcode = "CALL"
	CALLCODE     Opcode = "CALLCODE"
	DELEGATECALL Opcode = "DELEGATECALL"
	STATICCALL   Opcode = "STATICCALL"
	EXTCODESIZE  Opcode = "EXTCODESIZE"
	EXTCODECOPY  Opcode = "EXTCODECOPY"
	EXTCODEHASH  Opcode = "EXTCODEHASH"
	SLOAD        Opcode = "SLOAD"
	SSTORE       Opcode = "SSTORE"
	POP          Opcode = "POP"
)

// IsCall reports whether op is one of the four CALL-family opcodes.
func (op Opcode) IsCall() bool {
	switch op {
	case CALL, CALLCODE, DELEGATECALL, STATICCALL:
		return true
	default:
		return false
	}
}

// StorageAccess is one SLOAD/SSTORE observed during a call frame.
type StorageAccess struct {
	Address common.Address
	Slot    common.Hash
	Value   common.Hash // the value read (SLOAD) or written (SSTORE)
	Write   bool        // true for SSTORE, false for SLOAD
}

// Event is a single opcode execution observed at a given call depth.
type Event struct {
	Depth  int
	Opcode Opcode
	// Storage is populated for SLOAD/SSTORE.
	Storage *StorageAccess
	// CallTarget is populated for CALL-family and EXTCODE* opcodes.
	CallTarget *common.Address
	// Selector is the 4-byte calldata selector for a CALL-family opcode,
	// used to distinguish an allowed depositTo(address) call to the
	// EntryPoint from any other call to it.
	Selector [4]byte
	// Created is populated for CREATE/CREATE2, naming the resulting
	// contract address.
	Created *common.Address
}

// Frame is the flattened opcode/storage event stream observed while
// executing one entity's code (account, factory, or paymaster) during
// simulateValidation, plus the addresses whose code was read via
// EXTCODE* and the code hashes observed for each.
type Frame struct {
	Entity     common.Address
	Events     []Event
	CodeHashes map[common.Address]common.Hash
}
